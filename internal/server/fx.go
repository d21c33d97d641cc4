// Package server provides the application container and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/api"
	"github.com/JakeFAU/filmscraper/internal/catalog"
	"github.com/JakeFAU/filmscraper/internal/config"
	"github.com/JakeFAU/filmscraper/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/filmscraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/filmscraper/internal/fetcher/headless"
	"github.com/JakeFAU/filmscraper/internal/ingest"
	"github.com/JakeFAU/filmscraper/internal/parser"
	"github.com/JakeFAU/filmscraper/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/filmscraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/filmscraper/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/filmscraper/internal/queue/memory"
	"github.com/JakeFAU/filmscraper/internal/scraper"
	gcsstorage "github.com/JakeFAU/filmscraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/filmscraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/filmscraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/filmscraper/internal/storage/postgres"
	"github.com/JakeFAU/filmscraper/internal/storage/sqlite"
	"github.com/JakeFAU/filmscraper/internal/worker"
)

// CatalogStore is the persistence surface the container needs from a driver.
type CatalogStore interface {
	catalog.Store
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        CatalogStore
	scraper      *scraper.Service
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	queue        *queuememory.Queue
	headless     *headlessfetcher.Fetcher
	blobStore    catalog.BlobStore
	publisher    catalog.Publisher
	pubsub       *gcppublisher.Publisher
	storage      *storage.Client
	drainTimeout time.Duration
}

// Build creates the application's dependencies. Anything opened before a
// failure is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger, drainTimeout: 2 * time.Minute}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
			app = nil
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("driver", cfg.Database.Driver),
		zap.String("backend", cfg.Scraper.Backend),
		zap.String("storage", cfg.Storage.Backend),
	)

	if err = setupDatabase(ctx, app); err != nil {
		return app, err
	}
	fetcher, err := setupFetcher(app)
	if err != nil {
		return app, err
	}
	if err = setupPublisher(ctx, app); err != nil {
		return app, err
	}
	if err = setupImages(ctx, app); err != nil {
		return app, err
	}

	p, err := parser.New(logger.Named("parser"))
	if err != nil {
		return app, fmt.Errorf("parser init failed: %w", err)
	}
	deps := scraper.Deps{
		Fetcher:   fetcher,
		Parser:    p,
		Ingester:  ingest.New(app.store, logger.Named("ingest")),
		Publisher: app.publisher,
		Logger:    logger.Named("scraper"),
	}
	if app.dispatch != nil {
		deps.Avatars = app.dispatch
	}
	app.scraper, err = scraper.New(deps, scraper.Config{
		BaseURL: cfg.Scraper.BaseURL,
		Locale:  cfg.Scraper.Locale,
		Topic:   cfg.PubSub.TopicName,
	})
	if err != nil {
		return app, fmt.Errorf("scraper init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.scraper, app.store, app.store, *cfg, logger)
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the catalog store.
func (a *App) Store() CatalogStore { return a.store }

// Scraper returns the scrape orchestrator.
func (a *App) Scraper() *scraper.Service { return a.scraper }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// BlobStore returns where avatar renditions are written, or nil when the image
// pipeline is disabled.
func (a *App) BlobStore() catalog.BlobStore { return a.blobStore }

// Migrate applies the catalog schema.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	a.logger.Info("catalog schema ready", zap.String("driver", a.cfg.Database.Driver))
	return nil
}

// ScrapeOnce runs a single scrape, then drains the avatar queue before
// returning the number of avatars that were queued. The queue stays closed
// afterwards, so an App serves at most one ScrapeOnce.
func (a *App) ScrapeOnce(ctx context.Context, imdbID string, filmID int64) (int, error) {
	done := a.startImages(ctx)
	jobs, err := a.scraper.ScrapeAndIngest(ctx, imdbID, filmID)
	a.drainImages(done)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

// Run serves HTTP and processes avatars until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := a.startImages(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.drainImages(done)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// startImages launches the avatar workers. The returned channel closes once
// they have all stopped; it is nil when the image pipeline is disabled.
func (a *App) startImages(ctx context.Context) <-chan struct{} {
	if a.dispatch == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Images.Workers))
		// Detached from ctx so queued avatars still finish during shutdown.
		a.dispatch.Run(context.WithoutCancel(ctx))
	}()
	return done
}

func (a *App) drainImages(done <-chan struct{}) {
	if done == nil {
		return
	}
	a.queue.Close()
	select {
	case <-done:
		a.logger.Info("avatar queue drained")
	case <-time.After(a.drainTimeout):
		a.logger.Warn("avatar queue drain timed out", zap.Int("pending", a.queue.Len()))
	}
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("catalog store close failed", zap.Error(err))
		}
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	switch app.cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewCatalogStore(ctx, pgstore.CatalogStoreConfig{
			DSN:      app.cfg.Database.DSN,
			MaxConns: app.cfg.Database.MaxConns,
		}, app.logger.Named("postgres"))
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		app.store = store
	default:
		store, err := sqlite.Open(app.cfg.Database.DSN, app.logger)
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
		app.store = store
	}
	if app.cfg.Database.Migrate {
		return app.Migrate(ctx)
	}
	return nil
}

func setupFetcher(app *App) (catalog.Fetcher, error) {
	if app.cfg.Scraper.Backend == config.BackendChromedp {
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       app.cfg.Headless.MaxParallel,
			UserAgent:         app.cfg.Scraper.UserAgent,
			NavigationTimeout: app.cfg.NavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		app.headless = f
		app.logger.Info("using headless fetcher", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
		return f, nil
	}
	app.logger.Info("using colly fetcher", zap.String("user_agent", app.cfg.Scraper.UserAgent))
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     app.cfg.Scraper.UserAgent,
		RespectRobots: app.cfg.Scraper.RespectRobots,
		Timeout:       app.cfg.HTTPTimeout(),
	}), nil
}

func setupPublisher(ctx context.Context, app *App) error {
	switch {
	case app.cfg.PubSub.TopicName == "":
		app.logger.Info("no Pub/Sub topic configured, ingestion events disabled")
		return nil
	case app.cfg.PubSub.ProjectID == "":
		app.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		app.publisher = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsub = gcppublisher.New(client)
	if err := app.pubsub.Verify(ctx, app.cfg.PubSub.TopicName); err != nil {
		return fmt.Errorf("pubsub topic check failed: %w", err)
	}
	app.publisher = app.pubsub
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return nil
}

func setupStorage(ctx context.Context, app *App) (catalog.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case config.StorageGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case config.StorageLocal:
		app.logger.Info("using local storage backend", zap.String("path", app.cfg.Storage.BaseDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupImages(ctx context.Context, app *App) error {
	if !app.cfg.Images.Enabled {
		app.logger.Info("avatar pipeline disabled")
		return nil
	}
	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return err
	}
	app.blobStore = blobStore
	app.queue = queuememory.NewQueue(app.cfg.Images.QueueDepth)

	imageFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: app.cfg.Scraper.UserAgent,
		Timeout:   app.cfg.HTTPTimeout(),
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   app.cfg.Images.RatePerSecond,
		DefaultBurst: app.cfg.Images.Burst,
	})
	workerCfg := worker.Config{Prefix: app.cfg.Images.Prefix}
	app.logger.Info("worker config",
		zap.Int("workers", app.cfg.Images.Workers),
		zap.Int("queue_depth", app.cfg.Images.QueueDepth),
		zap.Float64("rate_per_second", app.cfg.Images.RatePerSecond),
		zap.String("prefix", workerCfg.Prefix),
	)

	workers := make([]*worker.Worker, app.cfg.Images.Workers)
	for i := range workers {
		workers[i] = worker.New(
			app.queue,
			imageFetcher,
			blobStore,
			limiter,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		)
	}
	app.dispatch = dispatcher.New(app.queue, workers)
	return nil
}

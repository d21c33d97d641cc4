// Package worker implements the avatar download loop fed by ingestion.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
	"github.com/JakeFAU/filmscraper/internal/images"
	"github.com/JakeFAU/filmscraper/internal/metrics"
)

// Avatar job outcomes reported to metrics.
const (
	StatusStored  = "stored"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Limiter throttles downloads per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls Worker behavior.
type Config struct {
	// Prefix is prepended to every object path, e.g. "avatars".
	Prefix string
}

// Worker consumes avatar jobs and stores every rendition of each image.
type Worker struct {
	queue     catalog.AvatarQueue
	fetcher   catalog.Fetcher
	blobStore catalog.BlobStore
	limiter   Limiter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. The limiter may be nil.
func New(
	queue catalog.AvatarQueue,
	fetcher catalog.Fetcher,
	blobStore catalog.BlobStore,
	limiter Limiter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		fetcher:   fetcher,
		blobStore: blobStore,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, catalog.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued avatar job", zap.Int64("person_id", job.PersonID))
		w.Process(ctx, job)
	}
}

// Process handles a single job. Failures are logged and counted; the catalog
// is never touched.
func (w *Worker) Process(ctx context.Context, job catalog.AvatarJob) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	stored, err := w.handleJob(ctx, job)
	switch {
	case err != nil:
		metrics.ObserveAvatarJob(StatusFailed)
		w.logger.Warn("avatar job failed",
			zap.Int64("person_id", job.PersonID),
			zap.String("url", job.URL),
			zap.Error(err),
		)
	case stored == 0:
		metrics.ObserveAvatarJob(StatusSkipped)
		w.logger.Debug("avatar already stored", zap.Int64("person_id", job.PersonID))
	default:
		metrics.ObserveAvatarJob(StatusStored)
		w.logger.Info("avatar stored",
			zap.Int64("person_id", job.PersonID),
			zap.Int("renditions", stored),
		)
	}
}

func (w *Worker) handleJob(ctx context.Context, job catalog.AvatarJob) (int, error) {
	if w.fetcher == nil || w.blobStore == nil {
		return 0, errors.New("avatar worker is not configured")
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, job.URL); err != nil {
			return 0, err
		}
	}

	resp, err := w.fetcher.Fetch(ctx, catalog.FetchRequest{URL: job.URL})
	if err != nil {
		return 0, fmt.Errorf("download avatar: %w", err)
	}
	metrics.ObserveFetch(metrics.SanitizeSite(job.URL), len(resp.Body))

	renditions, err := images.Render(resp.Body)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, r := range renditions {
		path := r.Path(w.cfg.Prefix, job.PersonID)
		exists, err := w.blobStore.Exists(ctx, path)
		if err != nil {
			return stored, fmt.Errorf("check %s: %w", path, err)
		}
		if exists {
			continue
		}
		if _, err := w.blobStore.PutObject(ctx, path, r.Format.ContentType, bytes.NewReader(r.Data)); err != nil {
			return stored, fmt.Errorf("put object: %w", err)
		}
		stored++
	}
	return stored, nil
}

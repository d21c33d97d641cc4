// Package scraper runs the fetch, parse and ingest pipeline for one film.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
	"github.com/JakeFAU/filmscraper/internal/id/uuid"
	"github.com/JakeFAU/filmscraper/internal/ingest"
	"github.com/JakeFAU/filmscraper/internal/logging"
	"github.com/JakeFAU/filmscraper/internal/metrics"
)

// Defaults for the title page source.
const (
	DefaultBaseURL = "https://www.imdb.com/title/"
	DefaultLocale  = "en_US"
	LocaleCookie   = "lc-main"
)

// Pipeline stages reported to metrics.
const (
	StageFetch  = "fetch"
	StageParse  = "parse"
	StageIngest = "ingest"
)

// OutcomeSuccess labels a scrape that committed.
const OutcomeSuccess = "success"

// Parser turns a fetched document into a scraped film.
type Parser interface {
	Parse(body []byte, filmID int64, imdbID string) (catalog.ScrapedFilm, error)
}

// Ingester merges a scraped film into the catalog.
type Ingester interface {
	IngestWithReport(ctx context.Context, film catalog.ScrapedFilm) ([]catalog.AvatarJob, ingest.Report, error)
}

// Config controls where title pages are fetched from and where events go.
type Config struct {
	BaseURL string
	Locale  string
	// Topic receives a film.ingested event after each commit. Empty disables publishing.
	Topic string
}

// Deps are the collaborators of a Service. Avatars and Publisher are optional.
type Deps struct {
	Fetcher   catalog.Fetcher
	Parser    Parser
	Ingester  Ingester
	Avatars   catalog.AvatarQueue
	Publisher catalog.Publisher
	Logger    *zap.Logger
}

// Service orchestrates scrapes. Scrapes are serialized: the catalog assumes a
// single writer.
type Service struct {
	mu        sync.Mutex
	fetcher   catalog.Fetcher
	parser    Parser
	ingester  Ingester
	avatars   catalog.AvatarQueue
	publisher catalog.Publisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	ids       interface{ NewID() (string, error) }
}

// New validates deps and builds a Service.
func New(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("scraper: fetcher is required")
	case deps.Parser == nil:
		return nil, errors.New("scraper: parser is required")
	case deps.Ingester == nil:
		return nil, errors.New("scraper: ingester is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fetcher:   deps.Fetcher,
		parser:    deps.Parser,
		ingester:  deps.Ingester,
		avatars:   deps.Avatars,
		publisher: deps.Publisher,
		cfg:       cfg,
		logger:    logger.Named("scraper"),
		now:       func() time.Time { return time.Now().UTC() },
		ids:       uuid.New(),
	}, nil
}

// FilmURL builds the title page URL for imdbID.
func FilmURL(baseURL, imdbID string) string {
	return strings.TrimRight(baseURL, "/") + "/" + imdbID + "/"
}

// OK collapses a scrape error into the boolean the command layer reports.
func OK(err error) bool {
	return err == nil
}

// Scrape is ScrapeAndIngest reduced to success or failure.
func (s *Service) Scrape(ctx context.Context, imdbID string, filmID int64) bool {
	_, err := s.ScrapeAndIngest(ctx, imdbID, filmID)
	return OK(err)
}

// ScrapeAndIngest fetches the title page for imdbID, parses it and merges it
// into film filmID. Fatal errors are returned unchanged so callers can inspect
// them with errors.As. Avatar jobs are handed to the image pipeline after the
// commit and also returned.
func (s *Service) ScrapeAndIngest(ctx context.Context, imdbID string, filmID int64) ([]catalog.AvatarJob, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, fmt.Errorf("scrape film %d: imdb id is required", filmID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With(logging.FilmFields(filmID, imdbID)...)
	start := time.Now()

	jobs, report, err := s.run(ctx, logger, imdbID, filmID)
	if err != nil {
		metrics.ObserveScrape(string(catalog.Kind(err)))
		logger.Error("scrape failed", zap.String("kind", string(catalog.Kind(err))), zap.Error(err))
		return nil, err
	}
	metrics.ObserveScrape(OutcomeSuccess)
	for kind, n := range report.Lookups {
		metrics.ObserveIngested(string(kind), n)
	}
	metrics.ObserveIngested("director", report.Directors)
	metrics.ObserveIngested("character", report.Characters)

	s.enqueueAvatars(logger, jobs)
	s.publishIngested(ctx, logger, imdbID, filmID, len(jobs))

	logger.Info("scrape complete",
		zap.Int("avatars", len(jobs)),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return jobs, nil
}

func (s *Service) run(
	ctx context.Context,
	logger *zap.Logger,
	imdbID string,
	filmID int64,
) ([]catalog.AvatarJob, ingest.Report, error) {
	url := FilmURL(s.cfg.BaseURL, imdbID)

	stageStart := time.Now()
	resp, err := s.fetcher.Fetch(ctx, catalog.FetchRequest{
		URL:     url,
		Cookies: map[string]string{LocaleCookie: s.cfg.Locale},
	})
	metrics.ObserveStage(StageFetch, time.Since(stageStart))
	if err != nil {
		return nil, ingest.Report{}, err
	}
	metrics.ObserveFetch(metrics.SanitizeSite(url), len(resp.Body))
	logger.Debug("title page fetched",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Bool("headless", resp.UsedHeadless),
	)

	stageStart = time.Now()
	film, err := s.parser.Parse(resp.Body, filmID, imdbID)
	metrics.ObserveStage(StageParse, time.Since(stageStart))
	if err != nil {
		return nil, ingest.Report{}, err
	}

	stageStart = time.Now()
	jobs, report, err := s.ingester.IngestWithReport(ctx, film)
	metrics.ObserveStage(StageIngest, time.Since(stageStart))
	if err != nil {
		return nil, report, err
	}
	return jobs, report, nil
}

// enqueueAvatars never blocks the scrape; jobs that do not fit are dropped.
func (s *Service) enqueueAvatars(logger *zap.Logger, jobs []catalog.AvatarJob) {
	if s.avatars == nil {
		return
	}
	for _, job := range jobs {
		if err := s.avatars.TryEnqueue(job); err != nil {
			metrics.ObserveAvatarJob("dropped")
			logger.Warn("avatar job dropped", zap.Int64("person_id", job.PersonID), zap.Error(err))
			continue
		}
		metrics.ObserveAvatarJob("queued")
	}
}

func (s *Service) publishIngested(ctx context.Context, logger *zap.Logger, imdbID string, filmID int64, avatars int) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	eventID, err := s.ids.NewID()
	if err != nil {
		logger.Warn("event id generation failed", zap.Error(err))
		return
	}
	event := catalog.IngestedEvent{
		EventID:    eventID,
		FilmID:     filmID,
		IMDbID:     imdbID,
		Avatars:    avatars,
		IngestedAt: s.now(),
	}
	id, err := s.publisher.Publish(ctx, s.cfg.Topic, event)
	if err != nil {
		logger.Warn("publish film.ingested failed", zap.String("topic", s.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("film.ingested published", zap.String("message_id", id), zap.String("event_id", event.EventID))
}

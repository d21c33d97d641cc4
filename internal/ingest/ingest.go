// Package ingest merges a scraped film into the catalog inside one transaction.
package ingest

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
	"github.com/JakeFAU/filmscraper/internal/logging"
	"github.com/JakeFAU/filmscraper/internal/normalize"
)

// Ingestion phases reported in DatabaseError and logs.
const (
	PhaseBegin        = "begin"
	PhaseUpdateFilm   = "update_film"
	PhaseInsertLookup = "insert_lookup"
	PhaseLookupID     = "lookup_id"
	PhaseLinkLookup   = "link_lookup"
	PhaseInsertPerson = "insert_person"
	PhasePersonID     = "person_id"
	PhaseLinkDirector = "link_director"
	PhaseCharacter    = "insert_character"
	PhaseCommit       = "commit"
)

// Report summarizes what a committed ingestion linked and skipped.
type Report struct {
	Lookups    map[catalog.LookupKind]int
	Directors  int
	Characters int
	Avatars    int
	Skipped    int
}

// Ingester owns the ingestion transaction.
type Ingester struct {
	store  catalog.Store
	logger *zap.Logger
}

// New builds an Ingester over store.
func New(store catalog.Store, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{store: store, logger: logger.Named("ingest")}
}

// Ingest persists film and returns the avatar jobs for the image pipeline.
func (i *Ingester) Ingest(ctx context.Context, film catalog.ScrapedFilm) ([]catalog.AvatarJob, error) {
	jobs, _, err := i.IngestWithReport(ctx, film)
	return jobs, err
}

// IngestWithReport is Ingest plus per-entity counts.
//
// The film row update and the commit are fatal: any error rolls the
// transaction back and is returned as a *catalog.DatabaseError. Every other
// statement failure is logged and skips only the affected item.
func (i *Ingester) IngestWithReport(ctx context.Context, film catalog.ScrapedFilm) ([]catalog.AvatarJob, Report, error) {
	logger := i.logger.With(logging.FilmFields(film.FilmID, film.IMDbID)...)
	update := normalize.Film(film, logger)
	report := Report{Lookups: make(map[catalog.LookupKind]int, 3)}

	tx, err := i.store.Begin(ctx)
	if err != nil {
		return nil, report, &catalog.DatabaseError{Phase: PhaseBegin, Err: err}
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	rows, err := tx.UpdateFilm(ctx, film.FilmID, update)
	if err != nil {
		return nil, report, &catalog.DatabaseError{Phase: PhaseUpdateFilm, Entity: strconv.FormatInt(film.FilmID, 10), Err: err}
	}
	if rows == 0 {
		return nil, report, &catalog.DatabaseError{
			Phase:  PhaseUpdateFilm,
			Entity: strconv.FormatInt(film.FilmID, 10),
			Err:    catalog.ErrFilmNotFound,
		}
	}

	s := session{tx: tx, filmID: film.FilmID, logger: logger, report: &report}
	s.lookups(ctx, catalog.LookupGenre, film.Genres)
	s.lookups(ctx, catalog.LookupLanguage, film.Languages)
	s.lookups(ctx, catalog.LookupKeyword, film.Keywords)
	s.directors(ctx, film.Directors)
	jobs := s.stars(ctx, film.Stars)

	if err := tx.Commit(ctx); err != nil {
		return nil, report, &catalog.DatabaseError{Phase: PhaseCommit, Err: err}
	}
	report.Avatars = len(jobs)
	logger.Info("film ingested",
		zap.Int("genres", report.Lookups[catalog.LookupGenre]),
		zap.Int("languages", report.Lookups[catalog.LookupLanguage]),
		zap.Int("keywords", report.Lookups[catalog.LookupKeyword]),
		zap.Int("directors", report.Directors),
		zap.Int("characters", report.Characters),
		zap.Int("avatars", report.Avatars),
		zap.Int("skipped", report.Skipped),
	)
	return jobs, report, nil
}

// session carries the per-transaction state for the non-fatal steps.
type session struct {
	tx     catalog.Tx
	filmID int64
	logger *zap.Logger
	report *Report
}

func (s *session) skip(phase, kind, name string, err error) {
	s.report.Skipped++
	s.logger.Warn("skipping entity",
		zap.String("phase", phase),
		zap.String("kind", kind),
		zap.String("name", name),
		zap.Error(&catalog.DatabaseError{Phase: phase, Entity: name, Err: err}),
	)
}

func (s *session) lookups(ctx context.Context, kind catalog.LookupKind, names []string) {
	for _, name := range names {
		if err := s.tx.InsertLookup(ctx, kind, name); err != nil {
			s.skip(PhaseInsertLookup, string(kind), name, err)
			continue
		}
		id, err := s.tx.LookupID(ctx, kind, name)
		if err != nil {
			s.skip(PhaseLookupID, string(kind), name, err)
			continue
		}
		if err := s.tx.LinkLookup(ctx, kind, s.filmID, id); err != nil {
			s.skip(PhaseLinkLookup, string(kind), name, err)
			continue
		}
		s.report.Lookups[kind]++
	}
}

// person inserts the person if its imdb id is new and returns the row id.
// An existing person's name is left as is.
func (s *session) person(ctx context.Context, kind, imdbID, name string) (int64, bool) {
	if err := s.tx.InsertPerson(ctx, imdbID, name); err != nil {
		s.skip(PhaseInsertPerson, kind, name, err)
		return 0, false
	}
	id, err := s.tx.PersonID(ctx, imdbID)
	if err != nil {
		s.skip(PhasePersonID, kind, name, err)
		return 0, false
	}
	return id, true
}

func (s *session) directors(ctx context.Context, directors []catalog.ScrapedDirector) {
	for _, director := range directors {
		id, ok := s.person(ctx, "director", director.IMDbID, director.Name)
		if !ok {
			continue
		}
		if err := s.tx.LinkDirector(ctx, s.filmID, id); err != nil {
			s.skip(PhaseLinkDirector, "director", director.Name, err)
			continue
		}
		s.report.Directors++
	}
}

func (s *session) stars(ctx context.Context, stars []catalog.ScrapedStar) []catalog.AvatarJob {
	jobs := []catalog.AvatarJob{}
	for _, star := range stars {
		id, ok := s.person(ctx, "star", star.IMDbID, star.Name)
		if !ok {
			continue
		}
		if star.Avatar != nil {
			jobs = append(jobs, catalog.AvatarJob{PersonID: id, URL: *star.Avatar})
		}
		if err := s.tx.InsertCharacter(ctx, s.filmID, id, star.Character); err != nil {
			s.skip(PhaseCharacter, "star", star.Name, err)
			continue
		}
		s.report.Characters++
	}
	return jobs
}

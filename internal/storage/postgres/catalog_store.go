package postgres

import (
	"context"
	_ "embed" // schema.sql
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
)

//go:embed schema.sql
var schemaSQL string

// savepoint isolates each non-fatal statement. Postgres aborts the whole
// transaction on any statement error unless it is rolled back to a savepoint.
const savepoint = "ingest_item"

// CatalogStoreConfig controls the Postgres connection pool.
type CatalogStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// CatalogStore persists the film catalog in Postgres.
type CatalogStore struct {
	pool   pool
	logger *zap.Logger
}

// NewCatalogStore connects a pgx pool using cfg.
func NewCatalogStore(ctx context.Context, cfg CatalogStoreConfig, logger *zap.Logger) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewCatalogStoreWithPool(p, logger)
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(p pool, logger *zap.Logger) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogStore{pool: p, logger: logger.Named("postgres")}, nil
}

// Migrate creates the catalog schema if it does not exist.
func (s *CatalogStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *CatalogStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Begin opens an ingestion transaction.
func (s *CatalogStore) Begin(ctx context.Context) (catalog.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &catalogTx{tx: tx}, nil
}

// GetFilm loads a film row by id.
func (s *CatalogStore) GetFilm(ctx context.Context, id int64) (catalog.Film, error) {
	var film catalog.Film
	err := s.pool.QueryRow(ctx, `
SELECT id, file, directory, imdb_id, title, release_date, plot, run_time, has_color, rating, registered
FROM films WHERE id = $1`, id).Scan(
		&film.ID, &film.File, &film.DirectoryID, &film.IMDbID, &film.Title, &film.ReleaseDate,
		&film.Plot, &film.RunTime, &film.HasColor, &film.Rating, &film.Registered,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Film{}, catalog.ErrFilmNotFound
	}
	if err != nil {
		return catalog.Film{}, fmt.Errorf("load film %d: %w", id, err)
	}
	return film, nil
}

type catalogTx struct {
	tx   pgx.Tx
	done bool
}

func (t *catalogTx) UpdateFilm(ctx context.Context, filmID int64, u catalog.FilmUpdate) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
UPDATE films SET
	imdb_id = $1, title = $2, release_date = $3, plot = $4,
	run_time = $5, has_color = $6, rating = $7, registered = TRUE
WHERE id = $8`,
		u.IMDbID, u.Title, u.ReleaseDate, u.Plot, u.RunTimeSeconds, u.HasColor, u.Rating, filmID)
	if err != nil {
		return 0, fmt.Errorf("update film: %w", err)
	}
	return tag.RowsAffected(), nil
}

// isolated runs fn inside a savepoint so a failure leaves the outer
// transaction usable.
func (t *catalogTx) isolated(ctx context.Context, fn func() error) error {
	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (t *catalogTx) exec(ctx context.Context, query string, args ...any) error {
	return t.isolated(ctx, func() error {
		_, err := t.tx.Exec(ctx, query, args...)
		return err
	})
}

func (t *catalogTx) queryID(ctx context.Context, query string, arg any) (int64, error) {
	var id int64
	err := t.isolated(ctx, func() error {
		return t.tx.QueryRow(ctx, query, arg).Scan(&id)
	})
	return id, err
}

func (t *catalogTx) InsertLookup(ctx context.Context, kind catalog.LookupKind, name string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown lookup kind %q", kind)
	}
	return t.exec(ctx, fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, kind.Table()), name)
}

func (t *catalogTx) LookupID(ctx context.Context, kind catalog.LookupKind, name string) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown lookup kind %q", kind)
	}
	return t.queryID(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE name = $1`, kind.Table()), name)
}

func (t *catalogTx) LinkLookup(ctx context.Context, kind catalog.LookupKind, filmID, lookupID int64) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown lookup kind %q", kind)
	}
	query := fmt.Sprintf(`INSERT INTO %s (film_id, %s) VALUES ($1, $2) ON CONFLICT (film_id, %s) DO NOTHING`,
		kind.Junction(), kind.Column(), kind.Column())
	return t.exec(ctx, query, filmID, lookupID)
}

func (t *catalogTx) InsertPerson(ctx context.Context, imdbID, name string) error {
	return t.exec(ctx, `INSERT INTO persons (imdb_id, name) VALUES ($1, $2) ON CONFLICT (imdb_id) DO NOTHING`, imdbID, name)
}

func (t *catalogTx) PersonID(ctx context.Context, imdbID string) (int64, error) {
	return t.queryID(ctx, `SELECT id FROM persons WHERE imdb_id = $1`, imdbID)
}

func (t *catalogTx) LinkDirector(ctx context.Context, filmID, personID int64) error {
	return t.exec(ctx,
		`INSERT INTO film_directors (film_id, person_id) VALUES ($1, $2) ON CONFLICT (film_id, person_id) DO NOTHING`,
		filmID, personID)
}

func (t *catalogTx) InsertCharacter(ctx context.Context, filmID, personID int64, description string) error {
	return t.exec(ctx,
		`INSERT INTO characters (film_id, description, actor) VALUES ($1, $2, $3) ON CONFLICT (film_id, actor) DO NOTHING`,
		filmID, description, personID)
}

func (t *catalogTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return err
	}
	t.done = true
	return nil
}

func (t *catalogTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

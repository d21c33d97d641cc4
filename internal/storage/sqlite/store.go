// Package sqlite implements the catalog store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed" // schema.sql
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // driver
	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
)

//go:embed schema.sql
var schemaSQL string

// Store persists the catalog in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to dsn with foreign keys enabled. An in-memory dsn is pinned
// to a single connection so every caller sees the same database.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return New(db, logger), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.Named("sqlite")}
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=1"
}

// Migrate creates the catalog schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying pool for catalog sync and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin opens an ingestion transaction.
func (s *Store) Begin(ctx context.Context) (catalog.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// GetFilm loads a film row by id.
func (s *Store) GetFilm(ctx context.Context, id int64) (catalog.Film, error) {
	var (
		film       catalog.Film
		imdbID     sql.NullString
		title      sql.NullString
		release    sql.NullString
		plot       sql.NullString
		runTime    sql.NullInt64
		hasColor   sql.NullBool
		rating     sql.NullFloat64
		registered bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file, directory, imdb_id, title, release_date, plot, run_time, has_color, rating, registered
		FROM films WHERE id = ?`, id).
		Scan(&film.ID, &film.File, &film.DirectoryID, &imdbID, &title, &release, &plot, &runTime, &hasColor, &rating, &registered)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Film{}, catalog.ErrFilmNotFound
	}
	if err != nil {
		return catalog.Film{}, fmt.Errorf("failed to load film %d: %w", id, err)
	}
	film.IMDbID = nullString(imdbID)
	film.Title = nullString(title)
	film.ReleaseDate = nullString(release)
	film.Plot = nullString(plot)
	if runTime.Valid {
		film.RunTime = &runTime.Int64
	}
	if hasColor.Valid {
		film.HasColor = &hasColor.Bool
	}
	if rating.Valid {
		film.Rating = &rating.Float64
	}
	film.Registered = registered
	return film, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// Tx is one SQLite ingestion transaction. A failed statement in SQLite only
// undoes itself, so non-fatal failures leave the transaction usable.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// UpdateFilm writes the scraped columns and marks the film registered.
func (t *Tx) UpdateFilm(ctx context.Context, filmID int64, u catalog.FilmUpdate) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE films SET
			imdb_id = ?, title = ?, release_date = ?, plot = ?,
			run_time = ?, has_color = ?, rating = ?, registered = 1
		WHERE id = ?`,
		u.IMDbID, u.Title, u.ReleaseDate, u.Plot, u.RunTimeSeconds, u.HasColor, u.Rating, filmID)
	if err != nil {
		return 0, fmt.Errorf("failed to update film: %w", err)
	}
	return res.RowsAffected()
}

// InsertLookup adds name to the lookup table, ignoring duplicates.
func (t *Tx) InsertLookup(ctx context.Context, kind catalog.LookupKind, name string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown lookup kind %q", kind)
	}
	query := fmt.Sprintf(`INSERT INTO %s (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, kind.Table())
	_, err := t.tx.ExecContext(ctx, query, name)
	return err
}

// LookupID returns the id of an existing lookup row.
func (t *Tx) LookupID(ctx context.Context, kind catalog.LookupKind, name string) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown lookup kind %q", kind)
	}
	var id int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, kind.Table())
	err := t.tx.QueryRowContext(ctx, query, name).Scan(&id)
	return id, err
}

// LinkLookup links the film to a lookup row, ignoring duplicates.
func (t *Tx) LinkLookup(ctx context.Context, kind catalog.LookupKind, filmID, lookupID int64) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown lookup kind %q", kind)
	}
	query := fmt.Sprintf(`INSERT INTO %s (film_id, %s) VALUES (?, ?) ON CONFLICT(film_id, %s) DO NOTHING`,
		kind.Junction(), kind.Column(), kind.Column())
	_, err := t.tx.ExecContext(ctx, query, filmID, lookupID)
	return err
}

// InsertPerson adds a person keyed by imdb id. Existing names are kept.
func (t *Tx) InsertPerson(ctx context.Context, imdbID, name string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO persons (imdb_id, name) VALUES (?, ?) ON CONFLICT(imdb_id) DO NOTHING`, imdbID, name)
	return err
}

// PersonID returns the row id for an imdb id.
func (t *Tx) PersonID(ctx context.Context, imdbID string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM persons WHERE imdb_id = ?`, imdbID).Scan(&id)
	return id, err
}

// LinkDirector links a director to the film, ignoring duplicates.
func (t *Tx) LinkDirector(ctx context.Context, filmID, personID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO film_directors (film_id, person_id) VALUES (?, ?) ON CONFLICT(film_id, person_id) DO NOTHING`,
		filmID, personID)
	return err
}

// InsertCharacter records a role. An existing (film, actor) row is never updated.
func (t *Tx) InsertCharacter(ctx context.Context, filmID, personID int64, description string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO characters (film_id, description, actor) VALUES (?, ?, ?) ON CONFLICT(film_id, actor) DO NOTHING`,
		filmID, description, personID)
	return err
}

// Commit commits the transaction.
func (t *Tx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return err
	}
	t.done = true
	return nil
}

// Rollback aborts the transaction unless it was already committed.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

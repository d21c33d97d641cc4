package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedFilm(t *testing.T, store *Store) int64 {
	t.Helper()
	ctx := context.Background()
	res, err := store.DB().ExecContext(ctx, `INSERT INTO directories (path) VALUES ('/films')`)
	require.NoError(t, err)
	dirID, err := res.LastInsertId()
	require.NoError(t, err)
	res, err = store.DB().ExecContext(ctx, `INSERT INTO films (file, directory) VALUES ('shawshank.mkv', ?)`, dirID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestWithForeignKeys(t *testing.T) {
	t.Parallel()

	require.Equal(t, ":memory:?_foreign_keys=1", withForeignKeys(":memory:"))
	require.Equal(t, "file:cat.db?cache=shared&_foreign_keys=1", withForeignKeys("file:cat.db?cache=shared"))
	require.Equal(t, "cat.db?_fk=1", withForeignKeys("cat.db?_fk=1"))
}

func TestMigrateIsRepeatable(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}

func TestGetFilm(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	id := seedFilm(t, store)

	film, err := store.GetFilm(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "shawshank.mkv", film.File)
	require.False(t, film.Registered)
	require.Nil(t, film.Title)
	require.Nil(t, film.HasColor)

	_, err = store.GetFilm(ctx, id+100)
	require.ErrorIs(t, err, catalog.ErrFilmNotFound)
}

func TestTxUpdateAndLookups(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	id := seedFilm(t, store)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	title := "The Shawshank Redemption"
	runTime := int64(8520)
	color := true
	rows, err := tx.UpdateFilm(ctx, id, catalog.FilmUpdate{IMDbID: "tt0111161", Title: &title, RunTimeSeconds: &runTime, HasColor: &color})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	rows, err = tx.UpdateFilm(ctx, id+100, catalog.FilmUpdate{IMDbID: "tt0"})
	require.NoError(t, err)
	require.Zero(t, rows)

	require.NoError(t, tx.InsertLookup(ctx, catalog.LookupGenre, "Drama"))
	require.NoError(t, tx.InsertLookup(ctx, catalog.LookupGenre, "Drama"))
	genreID, err := tx.LookupID(ctx, catalog.LookupGenre, "Drama")
	require.NoError(t, err)
	require.NoError(t, tx.LinkLookup(ctx, catalog.LookupGenre, id, genreID))
	require.NoError(t, tx.LinkLookup(ctx, catalog.LookupGenre, id, genreID))

	require.Error(t, tx.InsertLookup(ctx, catalog.LookupKind("studio"), "x"))
	// A dangling link fails on the foreign key without poisoning the transaction.
	require.Error(t, tx.LinkLookup(ctx, catalog.LookupGenre, id, genreID+100))

	require.NoError(t, tx.InsertPerson(ctx, "nm0000209", "Tim Robbins"))
	require.NoError(t, tx.InsertPerson(ctx, "nm0000209", "Timothy Robbins"))
	personID, err := tx.PersonID(ctx, "nm0000209")
	require.NoError(t, err)
	require.NoError(t, tx.InsertCharacter(ctx, id, personID, "Andy Dufresne"))
	require.NoError(t, tx.LinkDirector(ctx, id, personID))

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	film, err := store.GetFilm(ctx, id)
	require.NoError(t, err)
	require.True(t, film.Registered)
	require.Equal(t, title, *film.Title)
	require.Equal(t, runTime, *film.RunTime)
	require.True(t, *film.HasColor)

	var name string
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT name FROM persons WHERE imdb_id = 'nm0000209'`).Scan(&name))
	require.Equal(t, "Tim Robbins", name)

	var links int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM film_genres`).Scan(&links))
	require.Equal(t, 1, links)
}

func TestRollbackDiscardsWork(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	id := seedFilm(t, store)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.UpdateFilm(ctx, id, catalog.FilmUpdate{IMDbID: "tt0111161"})
	require.NoError(t, err)
	require.NoError(t, tx.InsertLookup(ctx, catalog.LookupKeyword, "prison"))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))

	film, err := store.GetFilm(ctx, id)
	require.NoError(t, err)
	require.False(t, film.Registered)

	var count int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM keywords`).Scan(&count))
	require.Zero(t, count)
}

func TestDeletingFilmCascades(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	id := seedFilm(t, store)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertLookup(ctx, catalog.LookupLanguage, "English"))
	langID, err := tx.LookupID(ctx, catalog.LookupLanguage, "English")
	require.NoError(t, err)
	require.NoError(t, tx.LinkLookup(ctx, catalog.LookupLanguage, id, langID))
	require.NoError(t, tx.Commit(ctx))

	_, err = store.DB().ExecContext(ctx, `DELETE FROM films WHERE id = ?`, id)
	require.NoError(t, err)

	var links, languages int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM film_languages`).Scan(&links))
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM languages`).Scan(&languages))
	require.Zero(t, links)
	require.Equal(t, 1, languages)
}

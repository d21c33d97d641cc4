package catalog

import (
	"context"
	"io"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Store opens ingestion transactions against the catalog.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	GetFilm(ctx context.Context, id int64) (Film, error)
	Close() error
}

// Tx is one ingestion unit of work. Every statement except UpdateFilm and Commit
// may fail without poisoning the transaction; callers decide what is fatal.
type Tx interface {
	// UpdateFilm writes the scalar columns, marks the film registered and
	// returns the number of rows affected.
	UpdateFilm(ctx context.Context, filmID int64, update FilmUpdate) (int64, error)
	InsertLookup(ctx context.Context, kind LookupKind, name string) error
	LookupID(ctx context.Context, kind LookupKind, name string) (int64, error)
	LinkLookup(ctx context.Context, kind LookupKind, filmID, lookupID int64) error
	InsertPerson(ctx context.Context, imdbID, name string) error
	PersonID(ctx context.Context, imdbID string) (int64, error)
	LinkDirector(ctx context.Context, filmID, personID int64) error
	InsertCharacter(ctx context.Context, filmID, personID int64, description string) error
	Commit(ctx context.Context) error
	// Rollback is a no-op once the transaction has been committed.
	Rollback(ctx context.Context) error
}

// BlobStore writes image artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Publisher pushes ingestion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// AvatarQueue buffers avatar jobs between ingestion and the image workers.
type AvatarQueue interface {
	Enqueue(ctx context.Context, job AvatarJob) error
	// TryEnqueue never blocks; it fails when the queue is full or closed.
	TryEnqueue(job AvatarJob) error
	Dequeue(ctx context.Context) (AvatarJob, error)
}

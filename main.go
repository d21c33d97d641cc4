// Command filmscraper enriches a local film catalog with IMDb title metadata.
//
// Architecture overview:
//   - Scrape pipeline: internal/scraper fetches a title page (Colly, or headless Chrome via chromedp), the parser
//     extracts the embedded JSON-LD block plus the cast list, internal/normalize converts raw values, and
//     internal/ingest merges the film, its lookups, directors and characters in one catalog transaction.
//   - Persistence: the catalog lives in SQLite by default or Postgres via pgx. Every sub-entity insert is best
//     effort; only the film update and the commit are fatal.
//   - Avatars: cast avatars are handed to a bounded in-memory queue without blocking the scrape. A fixed worker
//     pool downloads, resizes and stores the renditions in the configured BlobStore (memory/local/GCS).
//   - Fanout: a film.ingested event is published to Pub/Sub when a topic is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Scrapes are serialized; the catalog assumes a single writer.
//   - There are no retries. A failed scrape leaves the film unregistered and can simply be run again.
//   - The serve command reacts to SIGTERM by draining HTTP requests and the avatar queue before exit.
//
// Usage:
//
//	filmscraper scrape --imdb tt0111161 --film 12
//	filmscraper serve --config config.yaml
//	filmscraper migrate
package main

import (
	"github.com/JakeFAU/filmscraper/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

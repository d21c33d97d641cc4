// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/films/{film_id}/scrape to scrape and ingest one film.
//   - GET /v1/films/{film_id} to read back a catalog row.
package api

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
	"github.com/JakeFAU/filmscraper/internal/config"
)

func TestServer_ScrapeFilm_Succeeds(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{jobs: []catalog.AvatarJob{{PersonID: 1}, {PersonID: 2}}}
	server := NewServer(scraper, &fakeFilms{}, nil, config.Config{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/films/12/scrape", bytes.NewBufferString(`{"imdb_id":"tt0111161"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body scrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.OK)
	require.Equal(t, 2, body.Avatars)
	require.Equal(t, []scrapeCall{{imdbID: "tt0111161", filmID: 12}}, scraper.calls)
}

func TestServer_ScrapeFilm_ErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind catalog.ErrorKind
	}{
		{
			name:     "fetch",
			err:      &catalog.FetchError{URL: "u", StatusCode: 503, Err: errors.New("unexpected status")},
			wantCode: http.StatusBadGateway,
			wantKind: catalog.KindFetch,
		},
		{
			name:     "parse",
			err:      &catalog.ParseError{Reason: "no structured data block"},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: catalog.KindParse,
		},
		{
			name:     "missing film",
			err:      &catalog.DatabaseError{Phase: "update_film", Entity: "12", Err: catalog.ErrFilmNotFound},
			wantCode: http.StatusNotFound,
			wantKind: catalog.KindDatabase,
		},
		{
			name:     "commit",
			err:      &catalog.DatabaseError{Phase: "commit", Err: errors.New("disk I/O error")},
			wantCode: http.StatusInternalServerError,
			wantKind: catalog.KindDatabase,
		},
		{
			name:     "deadline",
			err:      fmt.Errorf("scrape: %w", context.DeadlineExceeded),
			wantCode: http.StatusGatewayTimeout,
			wantKind: catalog.KindUnknown,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := NewServer(&fakeScraper{err: tc.err}, &fakeFilms{}, nil, config.Config{}, zap.NewNop())
			req := httptest.NewRequest(http.MethodPost, "/v1/films/12/scrape", bytes.NewBufferString(`{"imdb_id":"tt1"}`))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, tc.wantCode, rec.Code)
			var body scrapeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.False(t, body.OK)
			require.Equal(t, string(tc.wantKind), body.Kind)
			require.Equal(t, tc.err.Error(), body.Error)
		})
	}
}

func TestServer_ScrapeFilm_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "invalid json", path: "/v1/films/12/scrape", body: "{invalid"},
		{name: "missing imdb id", path: "/v1/films/12/scrape", body: `{}`},
		{name: "malformed imdb id", path: "/v1/films/12/scrape", body: `{"imdb_id":"nm0000209"}`},
		{name: "non numeric film", path: "/v1/films/abc/scrape", body: `{"imdb_id":"tt1"}`},
		{name: "zero film", path: "/v1/films/0/scrape", body: `{"imdb_id":"tt1"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			scraper := &fakeScraper{}
			server := NewServer(scraper, &fakeFilms{}, nil, config.Config{}, zap.NewNop())
			req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Empty(t, scraper.calls)
		})
	}
}

func TestServer_GetFilm(t *testing.T) {
	t.Parallel()

	title := "The Shawshank Redemption"
	films := &fakeFilms{films: map[int64]catalog.Film{
		12: {ID: 12, File: "shawshank.mkv", Title: &title, Registered: true},
	}}
	server := NewServer(&fakeScraper{}, films, nil, config.Config{}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/films/12", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var film catalog.Film
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &film))
	require.Equal(t, int64(12), film.ID)
	require.True(t, film.Registered)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/films/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	films.err = errors.New("database is locked")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/films/12", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ready := &fakePinger{}
	server := NewServer(&fakeScraper{}, &fakeFilms{}, ready, config.Config{}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ready.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Auth: config.AuthConfig{
			Enabled: true,
			APIKey:  "secret",
		},
	}
	server := NewServer(&fakeScraper{}, &fakeFilms{}, nil, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz?api_key=secret", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer().Handler().ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	newTestServer().Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

func TestValidIMDbID(t *testing.T) {
	t.Parallel()

	require.True(t, validIMDbID("tt0111161"))
	require.True(t, validIMDbID("tt1"))
	require.False(t, validIMDbID("tt"))
	require.False(t, validIMDbID("tt01a"))
	require.False(t, validIMDbID("nm0000209"))
}

// --- helpers/fakes ---

type scrapeCall struct {
	imdbID string
	filmID int64
}

type fakeScraper struct {
	mu    sync.Mutex
	calls []scrapeCall
	jobs  []catalog.AvatarJob
	err   error
}

func (f *fakeScraper) ScrapeAndIngest(_ context.Context, imdbID string, filmID int64) ([]catalog.AvatarJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scrapeCall{imdbID: imdbID, filmID: filmID})
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs, nil
}

type fakeFilms struct {
	films map[int64]catalog.Film
	err   error
}

func (f *fakeFilms) GetFilm(_ context.Context, id int64) (catalog.Film, error) {
	if f.err != nil {
		return catalog.Film{}, f.err
	}
	film, ok := f.films[id]
	if !ok {
		return catalog.Film{}, catalog.ErrFilmNotFound
	}
	return film, nil
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	return p.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

func newTestServer() *Server {
	return NewServer(&fakeScraper{}, &fakeFilms{}, nil, config.Config{}, zap.NewNop())
}

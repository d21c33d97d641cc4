package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scrapesTotal == nil || fetchBytesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveScrape("init-test")
	if val := testutil.ToFloat64(scrapesTotal.WithLabelValues("init-test")); val != 1 {
		t.Errorf("Expected scrapesTotal to be 1, got %f", val)
	}
}

func TestObserveHelpers(t *testing.T) {
	ObserveFetch("https://www.IMDb.com/title/tt1/", 2048)
	ObserveFetch("https://www.imdb.com/title/tt2/", 0)
	if val := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("www.imdb.com")); val != 2048 {
		t.Errorf("Expected 2048 fetched bytes, got %f", val)
	}

	ObserveIngested("genre-helper-test", 3)
	ObserveIngested("genre-helper-test", 0)
	if val := testutil.ToFloat64(ingestedEntitiesTotal.WithLabelValues("genre-helper-test")); val != 3 {
		t.Errorf("Expected 3 ingested genres, got %f", val)
	}

	ObserveAvatarJob("stored-helper-test")
	if val := testutil.ToFloat64(avatarJobsTotal.WithLabelValues("stored-helper-test")); val != 1 {
		t.Errorf("Expected 1 stored avatar, got %f", val)
	}

	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(imageActiveWorkers); val != 0 {
		t.Errorf("Expected no active workers, got %f", val)
	}

	ObserveStage("fetch", 0)
	ObserveRateLimitDelay("m.media-amazon.com", 0)
	if val := testutil.CollectAndCount(scrapeStageDurationSeconds); val <= 0 {
		t.Errorf("Expected stage durations to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

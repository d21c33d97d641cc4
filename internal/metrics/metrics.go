// Package metrics exposes Prometheus collectors for the scrape service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal                *prometheus.CounterVec
	scrapeStageDurationSeconds  *prometheus.HistogramVec
	fetchBytesTotal             *prometheus.CounterVec
	ingestedEntitiesTotal       *prometheus.CounterVec
	avatarJobsTotal             *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	imageActiveWorkers          prometheus.Gauge
	imageRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmscraper_scrapes_total",
				Help: "Total number of scrape-and-ingest runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeStageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filmscraper_scrape_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmscraper_fetch_bytes_total",
				Help: "Total number of document bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		ingestedEntitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmscraper_ingested_entities_total",
				Help: "Total number of entities linked or skipped during ingestion, labeled by kind.",
			},
			[]string{"kind"},
		)

		avatarJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmscraper_avatar_jobs_total",
				Help: "Total number of avatar jobs handled by the image pipeline, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		imageActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "filmscraper_image_active_workers",
				Help: "Number of image workers currently processing an avatar job.",
			},
		)

		imageRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filmscraper_image_rate_limit_delays_seconds",
				Help:    "Histogram of image download rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape increments the scrape counter for the given outcome.
func ObserveScrape(outcome string) {
	Init()
	scrapesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	scrapeStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveFetch adds the fetched byte count for a site.
func ObserveFetch(site string, bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveIngested adds count entities of kind.
func ObserveIngested(kind string, count int) {
	Init()
	if count > 0 {
		ingestedEntitiesTotal.WithLabelValues(kind).Add(float64(count))
	}
}

// ObserveAvatarJob increments the avatar job counter for the given status.
func ObserveAvatarJob(status string) {
	Init()
	avatarJobsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active image workers gauge.
func IncActiveWorkers() {
	Init()
	imageActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active image workers gauge.
func DecActiveWorkers() {
	Init()
	imageActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	imageRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

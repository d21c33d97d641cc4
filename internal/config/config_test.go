package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scraper:
  base_url: http://127.0.0.1:9999/title/
  user_agent: real-agent
  locale: fr_FR
  backend: chromedp
http:
  timeout_seconds: 45
headless:
  max_parallel: 2
  nav_timeout_seconds: 30
database:
  driver: postgres
  dsn: postgres://films@localhost/films
  max_conns: 8
  migrate: false
images:
  enabled: true
  workers: 3
  queue_depth: 10
  rate_per_second: 0.5
  burst: 2
  prefix: people
storage:
  backend: gcs
  gcs_bucket: bucket
pubsub:
  project_id: proj
  topic_name: film-ingested
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Scraper.Backend != BackendChromedp || cfg.Scraper.Locale != "fr_FR" {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.MaxConns != 8 || cfg.Database.Migrate {
		t.Fatalf("expected database overrides to apply: %+v", cfg.Database)
	}
	if cfg.Images.Workers != 3 || cfg.Images.RatePerSecond != 0.5 || cfg.Images.Prefix != "people" {
		t.Fatalf("expected image overrides to apply: %+v", cfg.Images)
	}
	if cfg.Storage.Backend != StorageGCS || cfg.PubSub.TopicName != "film-ingested" {
		t.Fatalf("expected storage and pubsub overrides to apply")
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development false")
	}
	if got := cfg.HTTPTimeout(); got != 45*time.Second {
		t.Fatalf("expected http timeout 45s, got %v", got)
	}
	if got := cfg.NavTimeout(); got != 30*time.Second {
		t.Fatalf("expected nav timeout 30s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.BaseURL != "https://www.imdb.com/title/" || cfg.Scraper.Locale != "en_US" {
		t.Fatalf("unexpected scraper defaults: %+v", cfg.Scraper)
	}
	if cfg.Scraper.Backend != BackendColly || cfg.Scraper.RespectRobots {
		t.Fatalf("unexpected backend defaults: %+v", cfg.Scraper)
	}
	if cfg.Database.Driver != DriverSQLite || !cfg.Database.Migrate {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	// Images are on by default, so renditions land on disk rather than in a
	// process-local store that is thrown away on exit.
	if !cfg.Images.Enabled || cfg.Storage.Backend != StorageLocal || cfg.Storage.BaseDir != "media" || cfg.Images.Prefix != "avatars" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Images, cfg.Storage)
	}
	if cfg.HTTP.TimeoutSeconds != 0 || cfg.HTTPTimeout() != 0 {
		t.Fatalf("expected the client default timeout, got %d", cfg.HTTP.TimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FILMSCRAPER_SERVER_PORT", "7070")
	t.Setenv("FILMSCRAPER_PUBSUB_TOPIC_NAME", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.PubSub.TopicName != "from-env" {
		t.Fatalf("expected env topic, got %q", cfg.PubSub.TopicName)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Scraper:  ScraperConfig{Backend: BackendColly},
		HTTP:     HTTPConfig{TimeoutSeconds: 10},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:"},
		Images:   ImagesConfig{Enabled: true, Workers: 1, QueueDepth: 1},
		Storage:  StorageConfig{Backend: StorageMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	clientDefault := base
	clientDefault.HTTP.TimeoutSeconds = 0
	if err := clientDefault.Validate(); err != nil {
		t.Fatalf("zero timeout should keep the client default: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = -1 }, want: "http.timeout_seconds"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown backend", mutate: func(c *Config) { c.Scraper.Backend = "curl" }, want: "scraper.backend"},
		{
			name: "chromedp missing max parallel",
			mutate: func(c *Config) {
				c.Scraper.Backend = BackendChromedp
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, want: "database.driver"},
		{name: "missing dsn", mutate: func(c *Config) { c.Database.DSN = "" }, want: "database.dsn"},
		{name: "no workers", mutate: func(c *Config) { c.Images.Workers = 0 }, want: "images.workers"},
		{name: "no queue", mutate: func(c *Config) { c.Images.QueueDepth = 0 }, want: "images.queue_depth"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = StorageLocal }, want: "storage.base_dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, want: "storage.gcs_bucket"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

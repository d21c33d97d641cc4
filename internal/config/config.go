// Package config loads and validates filmscraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Database DatabaseConfig `mapstructure:"database"`
	Images   ImagesConfig   `mapstructure:"images"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// Fetch backends.
const (
	BackendColly    = "colly"
	BackendChromedp = "chromedp"
)

// ScraperConfig points the pipeline at the title page source.
type ScraperConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	UserAgent     string `mapstructure:"user_agent"`
	Locale        string `mapstructure:"locale"`
	Backend       string `mapstructure:"backend"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	// TimeoutSeconds of zero keeps the HTTP client default.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and tunes the catalog store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// ImagesConfig sizes the avatar pipeline.
type ImagesConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Workers       int     `mapstructure:"workers"`
	QueueDepth    int     `mapstructure:"queue_depth"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	Prefix        string  `mapstructure:"prefix"`
}

// Blob store backends.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// StorageConfig selects where avatar renditions are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for film.ingested notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FILMSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("scraper.base_url", "https://www.imdb.com/title/")
	v.SetDefault("scraper.user_agent", "filmscraper/0.1")
	v.SetDefault("scraper.locale", "en_US")
	v.SetDefault("scraper.backend", BackendColly)
	v.SetDefault("scraper.respect_robots", false)
	v.SetDefault("http.timeout_seconds", 0)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "filmscraper.db")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.migrate", true)
	v.SetDefault("images.enabled", true)
	v.SetDefault("images.workers", 2)
	v.SetDefault("images.queue_depth", 256)
	v.SetDefault("images.rate_per_second", 2)
	v.SetDefault("images.burst", 1)
	v.SetDefault("images.prefix", "avatars")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("logging.development", true)
	// Registered so AutomaticEnv can resolve them during Unmarshal.
	v.SetDefault("auth.api_key", "")
	v.SetDefault("storage.base_dir", "media")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return fmt.Errorf("http.timeout_seconds must be >= 0")
	}
	switch c.Scraper.Backend {
	case BackendColly:
	case BackendChromedp:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 when the chromedp backend is selected")
		}
	default:
		return fmt.Errorf("scraper.backend must be %q or %q, got %q", BackendColly, BackendChromedp, c.Scraper.Backend)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Images.Enabled {
		if c.Images.Workers <= 0 {
			return fmt.Errorf("images.workers must be > 0 when images are enabled")
		}
		if c.Images.QueueDepth <= 0 {
			return fmt.Errorf("images.queue_depth must be > 0 when images are enabled")
		}
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs, got %q", c.Storage.Backend)
	}
	return nil
}

// HTTPTimeout converts the fetch timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

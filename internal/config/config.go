// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Crawl modes accepted by crawler.mode.
const (
	ModeJSON = "json"
	ModeHTML = "html"
)

// Archive backends accepted by archive.backend.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// MemoryDSN selects the in-memory listing store.
const MemoryDSN = "memory://"

// Config captures all run configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTML     HTMLConfig     `mapstructure:"html"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs pagination, fan-out and extraction keys.
type CrawlerConfig struct {
	Mode                string  `mapstructure:"mode"`
	BaseURL             string  `mapstructure:"base_url"`
	MaxPages            int     `mapstructure:"max_pages"`
	Concurrency         int     `mapstructure:"concurrency"`
	UserAgent           string  `mapstructure:"user_agent"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	KeyPrefix           string  `mapstructure:"key_prefix"`
	CategoryName        string  `mapstructure:"category_name"`
	CategoryURLTemplate string  `mapstructure:"category_url_template"`
	CategoryMaxPages    int     `mapstructure:"category_max_pages"`
}

// HTMLConfig names the markup conventions of listing cards.
type HTMLConfig struct {
	ContainerClass   string `mapstructure:"container_class"`
	ClassBase        string `mapstructure:"class_base"`
	TitleClass       string `mapstructure:"title_class"`
	DetailsSeparator string `mapstructure:"details_separator"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering subsystem. With Promote
// set, pages are fetched statically first and rendered only when they look
// client-side; otherwise every page is rendered.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Promote       bool `mapstructure:"promote"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the listing store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Ephemeral reports whether the DSN selects the in-memory store, which keeps
// nothing once the process exits.
func (c DBConfig) Ephemeral() bool {
	return strings.HasPrefix(c.DSN, MemoryDSN)
}

// ArchiveConfig selects where raw page payloads are kept, if anywhere.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the optional health/metrics HTTP listener.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	cfg.Crawler.Mode = strings.ToLower(strings.TrimSpace(cfg.Crawler.Mode))
	cfg.Archive.Backend = strings.ToLower(strings.TrimSpace(cfg.Archive.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.mode", ModeJSON)
	v.SetDefault("crawler.base_url", "")
	v.SetDefault("crawler.max_pages", 10)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "listing-crawler/0.1")
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.key_prefix", "")
	v.SetDefault("crawler.category_name", "car")
	v.SetDefault("crawler.category_url_template", "")
	v.SetDefault("crawler.category_max_pages", 1)
	v.SetDefault("html.container_class", "bama-ad-holder")
	v.SetDefault("html.class_base", "bama-ad")
	v.SetDefault("html.title_class", "text")
	v.SetDefault("html.details_separator", ", ")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.promote", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "listings")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Crawler.BaseURL) == "" {
		return fmt.Errorf("crawler.base_url must be set")
	}
	if _, err := url.Parse(c.Crawler.BaseURL); err != nil {
		return fmt.Errorf("crawler.base_url is invalid: %w", err)
	}
	switch c.Crawler.Mode {
	case ModeJSON, ModeHTML:
	default:
		return fmt.Errorf("crawler.mode must be %q or %q, got %q", ModeJSON, ModeHTML, c.Crawler.Mode)
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("db.dsn must be set (postgres://... or memory:// for a throwaway run)")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if c.Crawler.Mode == ModeHTML {
		if strings.TrimSpace(c.Crawler.CategoryName) == "" {
			return fmt.Errorf("crawler.category_name must be set in html mode")
		}
		if c.Crawler.CategoryMaxPages <= 0 {
			return fmt.Errorf("crawler.category_max_pages must be > 0")
		}
		if c.HTML.ContainerClass == "" {
			return fmt.Errorf("html.container_class must be set in html mode")
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Archive.Backend {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Metrics.Port < 0 {
		return fmt.Errorf("metrics.port must be >= 0")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c Config) Backoff() (time.Duration, time.Duration) {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// PublishEnabled reports whether listing notifications should be sent.
func (c Config) PublishEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}

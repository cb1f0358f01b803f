// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers and artifact backends accepted by Validate.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	ArtifactsLocal  = "local"
	ArtifactsMemory = "memory"
	ArtifactsGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Store     StoreConfig     `mapstructure:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig governs the crawl stage.
type CrawlConfig struct {
	UserAgent          string   `mapstructure:"user_agent"`
	MaxPagesDefault    int      `mapstructure:"max_pages_default"`
	PageTimeoutSeconds int      `mapstructure:"page_timeout_seconds"`
	RequestsPerSecond  float64  `mapstructure:"requests_per_second"`
	RespectRobots      bool     `mapstructure:"respect_robots"`
	ExcludePatterns    []string `mapstructure:"exclude_patterns"`
	BlockedHosts       []string `mapstructure:"blocked_hosts"`
}

// CaptureConfig governs the screenshot stage.
type CaptureConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	SettleSeconds  int `mapstructure:"settle_seconds"`
	ViewportWidth  int `mapstructure:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height"`
}

// AuditConfig governs the audit stage. Attempts counts total tries per
// page, including the first.
type AuditConfig struct {
	Attempts       int `mapstructure:"attempts"`
	BackoffSeconds int `mapstructure:"backoff_seconds"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PipelineConfig sizes the job queue and runner pool.
type PipelineConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// StoreConfig selects and tunes the job repository backend.
type StoreConfig struct {
	Driver              string `mapstructure:"driver"`
	DSN                 string `mapstructure:"dsn"`
	MaxConns            int    `mapstructure:"max_conns"`
	MinConns            int    `mapstructure:"min_conns"`
	ConnLifetimeMinutes int    `mapstructure:"conn_lifetime_minutes"`
}

// ArtifactsConfig selects the blob store backend for screenshots and
// reports.
type ArtifactsConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for the analysis hand-off topic.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TelemetryConfig controls OpenTelemetry tracing export. Traces go to Google
// Cloud Trace when a project is configured; otherwise the provider stays
// local and spans are dropped.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	ProjectID   string `mapstructure:"project_id"`
	Region      string `mapstructure:"region"`
}

// Load builds a Config from disk/environment. An empty path skips the file
// and relies on defaults plus SITELENS_-prefixed environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITELENS")
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
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawl.user_agent", "sitelens-bot/1.0")
	v.SetDefault("crawl.max_pages_default", 25)
	v.SetDefault("crawl.page_timeout_seconds", 15)
	v.SetDefault("crawl.requests_per_second", 2)
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("capture.concurrency", 2)
	v.SetDefault("capture.timeout_seconds", 30)
	v.SetDefault("capture.settle_seconds", 2)
	v.SetDefault("capture.viewport_width", 1366)
	v.SetDefault("capture.viewport_height", 900)
	v.SetDefault("audit.attempts", 2)
	v.SetDefault("audit.backoff_seconds", 3)
	v.SetDefault("audit.timeout_seconds", 45)
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("store.driver", StoreMemory)
	// Empty defaults register the keys with Viper so env-only overrides
	// survive Unmarshal.
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.conn_lifetime_minutes", 30)
	v.SetDefault("artifacts.backend", ArtifactsLocal)
	v.SetDefault("artifacts.dir", "data/artifacts")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "sitelens.reports")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "sitelens")
	v.SetDefault("telemetry.version", "dev")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawl.max_pages_default must be > 0")
	}
	if c.Capture.Concurrency <= 0 {
		return fmt.Errorf("capture.concurrency must be > 0")
	}
	if c.Audit.Attempts < 1 {
		return fmt.Errorf("audit.attempts must be >= 1")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.driver is postgres")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q", StoreMemory, StorePostgres)
	}
	switch c.Artifacts.Backend {
	case ArtifactsMemory:
	case ArtifactsLocal:
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir must be set when artifacts.backend is local")
		}
	case ArtifactsGCS:
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket must be set when artifacts.backend is gcs")
		}
	default:
		return fmt.Errorf("artifacts.backend must be %q, %q, or %q",
			ArtifactsLocal, ArtifactsMemory, ArtifactsGCS)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
		}
		if c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.topic must be set when pubsub is enabled")
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry.service_name must be set when telemetry is enabled")
	}
	return nil
}

// RequestTimeout converts the server timeout into a duration for middleware.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PageTimeout bounds a single crawl page load.
func (c CrawlConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// Timeout bounds one capture navigation plus screenshot.
func (c CaptureConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Settle is the capture post-load pause.
func (c CaptureConfig) Settle() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}

// Backoff is the fixed wait between audit tries.
func (c AuditConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// Timeout bounds a single audit attempt.
func (c AuditConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ConnLifetime is the maximum age of a pooled Postgres connection.
func (c StoreConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMinutes) * time.Minute
}

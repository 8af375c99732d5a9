// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backends for the task/record stores and the media store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	MediaLocal  = "local"
	MediaGCS    = "gcs"
	MediaMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Workers   WorkerConfig    `mapstructure:"workers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Media     MediaConfig     `mapstructure:"media"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Download  DownloadConfig  `mapstructure:"download"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Publish   PublishConfig   `mapstructure:"publish"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
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

// WorkerConfig sizes the worker pool and bounds each task.
type WorkerConfig struct {
	Count          int           `mapstructure:"count"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
}

// StorageConfig selects the task and record backends.
type StorageConfig struct {
	// Tasks is memory or postgres.
	Tasks string `mapstructure:"tasks"`
	// Records is memory, postgres or mongo.
	Records string `mapstructure:"records"`
	// StateDir holds JSON snapshots for the memory backends; empty keeps
	// state in process only.
	StateDir string `mapstructure:"state_dir"`
}

// PostgresConfig configures the pgx pool and table names.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	TasksTable      string        `mapstructure:"tasks_table"`
	RecordsTable    string        `mapstructure:"records_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// MongoConfig configures the Mongo record store.
type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MediaConfig selects where managed media lives and how ffmpeg is found.
type MediaConfig struct {
	Backend   string        `mapstructure:"backend"`
	LocalDir  string        `mapstructure:"local_dir"`
	GCSBucket string        `mapstructure:"gcs_bucket"`
	GCSPrefix string        `mapstructure:"gcs_prefix"`
	WorkDir   string        `mapstructure:"work_dir"`
	FFmpeg    string        `mapstructure:"ffmpeg"`
	Root      string        `mapstructure:"root"`
	Timeout   time.Duration `mapstructure:"ffmpeg_timeout"`
	FontPaths []string      `mapstructure:"font_paths"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// BrowserConfig configures the crawl browser.
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Headless          bool          `mapstructure:"headless"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	UserAgent         string        `mapstructure:"user_agent"`
	Proxy             string        `mapstructure:"proxy"`
	ChromePaths       []string      `mapstructure:"chrome_paths"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
}

// DownloadConfig tunes video downloads.
type DownloadConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxBytes    int64         `mapstructure:"max_bytes"`
}

// SelectorsConfig points at the optional selector override file.
type SelectorsConfig struct {
	OverridesPath string `mapstructure:"overrides_path"`
}

// RateRule is a per-platform pacing rule.
type RateRule struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// RateLimitConfig paces crawls per platform.
type RateLimitConfig struct {
	DefaultRPS   float64             `mapstructure:"default_rps"`
	DefaultBurst int                 `mapstructure:"default_burst"`
	Platforms    map[string]RateRule `mapstructure:"platforms"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	History        bool          `mapstructure:"history"`
}

// PublishConfig configures the publish CLI.
type PublishConfig struct {
	AccountFile string        `mapstructure:"account_file"`
	Headless    bool          `mapstructure:"headless"`
	Proxy       string        `mapstructure:"proxy"`
	ChromePaths []string      `mapstructure:"chrome_paths"`
	Overrides   string        `mapstructure:"overrides_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Load builds a Config from disk/environment. Environment variables use the
// COLLECTOR_ prefix with dots replaced by underscores.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
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
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_grace", "10s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("workers.count", 2)
	v.SetDefault("workers.queue_depth", 64)
	v.SetDefault("workers.task_timeout", "3m")
	v.SetDefault("workers.persist_timeout", "10s")
	v.SetDefault("storage.tasks", StoreMemory)
	v.SetDefault("storage.records", StoreMemory)
	v.SetDefault("storage.state_dir", "data")
	v.SetDefault("postgres.tasks_table", "collection_tasks")
	v.SetDefault("postgres.records_table", "collection_records")
	v.SetDefault("postgres.max_conns", 8)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("mongo.database", "creative")
	v.SetDefault("mongo.collection", "collection_records")
	v.SetDefault("mongo.timeout", "10s")
	v.SetDefault("media.backend", MediaLocal)
	v.SetDefault("media.local_dir", "static")
	v.SetDefault("media.ffmpeg_timeout", "60s")
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.navigation_timeout", "40s")
	v.SetDefault("browser.settle_delay", "2s")
	v.SetDefault("download.timeout", "60s")
	v.SetDefault("download.max_attempts", 3)
	v.SetDefault("download.base_delay", "500ms")
	v.SetDefault("download.max_delay", "5s")
	v.SetDefault("download.max_bytes", 512<<20)
	v.SetDefault("rate_limit.default_rps", 0.5)
	v.SetDefault("rate_limit.default_burst", 1)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait", "250ms")
	v.SetDefault("progress.history", true)
	v.SetDefault("publish.headless", false)
	v.SetDefault("publish.timeout", "10m")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Workers.QueueDepth <= 0 {
		return fmt.Errorf("workers.queue_depth must be > 0")
	}
	if c.Workers.TaskTimeout <= 0 {
		return fmt.Errorf("workers.task_timeout must be > 0")
	}
	switch c.Storage.Tasks {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("storage.tasks must be memory or postgres, got %q", c.Storage.Tasks)
	}
	switch c.Storage.Records {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("storage.records must be memory, postgres or mongo, got %q", c.Storage.Records)
	}
	if c.UsesPostgres() && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn must be set when a postgres store is selected")
	}
	if c.Storage.Records == StoreMongo && c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri must be set when storage.records is mongo")
	}
	switch c.Media.Backend {
	case MediaLocal:
		if c.Media.LocalDir == "" {
			return fmt.Errorf("media.local_dir must be set for the local backend")
		}
	case MediaGCS:
		if c.Media.GCSBucket == "" {
			return fmt.Errorf("media.gcs_bucket must be set for the gcs backend")
		}
	case MediaMemory:
	default:
		return fmt.Errorf("media.backend must be local, gcs or memory, got %q", c.Media.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Browser.Enabled && c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0 when the browser is enabled")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// UsesPostgres reports whether any store needs the pgx pool.
func (c Config) UsesPostgres() bool {
	return c.Storage.Tasks == StorePostgres || c.Storage.Records == StorePostgres
}

// APIKey returns the key the API should enforce, empty when auth is off.
func (c Config) APIKey() string {
	if !c.Auth.Enabled {
		return ""
	}
	return c.Auth.APIKey
}

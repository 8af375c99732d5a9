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
workers:
  count: 6
  queue_depth: 128
  task_timeout: 90s
storage:
  tasks: postgres
  records: mongo
postgres:
  dsn: postgres://u:p@localhost:5432/creative
mongo:
  uri: mongodb://localhost:27017
media:
  backend: gcs
  gcs_bucket: creative-media
  gcs_prefix: prod
pubsub:
  project_id: demo
  topic: collection-completed
selectors:
  overrides_path: selectors.yaml
rate_limit:
  default_rps: 1
  platforms:
    douyin:
      rps: 0.2
      burst: 2
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
	if cfg.APIKey() != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Workers.Count != 6 || cfg.Workers.TaskTimeout != 90*time.Second {
		t.Fatalf("expected worker overrides to apply: %+v", cfg.Workers)
	}
	if !cfg.UsesPostgres() || cfg.Storage.Records != StoreMongo {
		t.Fatalf("expected storage backends to apply: %+v", cfg.Storage)
	}
	if cfg.Mongo.Database != "creative" {
		t.Fatalf("expected mongo database default, got %q", cfg.Mongo.Database)
	}
	rule, ok := cfg.RateLimit.Platforms["douyin"]
	if !ok || rule.RPS != 0.2 || rule.Burst != 2 {
		t.Fatalf("expected douyin rate rule: %+v", cfg.RateLimit.Platforms)
	}
	if cfg.Browser.NavigationTimeout != 40*time.Second || cfg.Browser.SettleDelay != 2*time.Second {
		t.Fatalf("expected browser defaults, got %+v", cfg.Browser)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Tasks != StoreMemory || cfg.Media.Backend != MediaLocal {
		t.Fatalf("expected memory stores and local media, got %+v %+v", cfg.Storage, cfg.Media)
	}
	if cfg.Workers.TaskTimeout != 3*time.Minute {
		t.Fatalf("expected 3m task timeout, got %v", cfg.Workers.TaskTimeout)
	}
	if cfg.APIKey() != "" {
		t.Fatalf("expected auth disabled by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Workers: WorkerConfig{Count: 1, QueueDepth: 1, TaskTimeout: time.Minute},
		Storage: StorageConfig{Tasks: StoreMemory, Records: StoreMemory},
		Media:   MediaConfig{Backend: MediaMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no workers", func(c *Config) { c.Workers.Count = 0 }, "workers.count"},
		{"no timeout", func(c *Config) { c.Workers.TaskTimeout = 0 }, "workers.task_timeout"},
		{"unknown task store", func(c *Config) { c.Storage.Tasks = "mongo" }, "storage.tasks"},
		{"postgres without dsn", func(c *Config) { c.Storage.Records = StorePostgres }, "postgres.dsn"},
		{"mongo without uri", func(c *Config) { c.Storage.Records = StoreMongo }, "mongo.uri"},
		{"gcs without bucket", func(c *Config) { c.Media.Backend = MediaGCS }, "media.gcs_bucket"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "t" }, "pubsub.project_id"},
		{"browser without parallelism", func(c *Config) { c.Browser.Enabled = true }, "browser.max_parallel"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		tt := tt
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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Calendar CalendarConfig `yaml:"calendar"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Push     PushConfig     `yaml:"push"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Backend                string `yaml:"backend"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// EngineConfig holds the evaluation engine and dispatch pool configuration.
type EngineConfig struct {
	Enabled               bool          `yaml:"enabled"`
	IntervalSeconds       int           `yaml:"interval_seconds"`
	Interval              time.Duration `yaml:"-"` // Derived from IntervalSeconds
	WorkerPoolSize        int           `yaml:"worker_pool_size"`
	MaxDispatchAttempts   int           `yaml:"max_dispatch_attempts"`
	BackoffInitialMillis  int           `yaml:"backoff_initial_millis"`
	BackoffInitial        time.Duration `yaml:"-"`
	AttemptTimeoutSeconds int           `yaml:"attempt_timeout_seconds"`
	AttemptTimeout        time.Duration `yaml:"-"`
}

// CalendarSourceConfig describes one upstream booking feed.
type CalendarSourceConfig struct {
	ID       string            `yaml:"id"`
	Type     string            `yaml:"type"` // "google", "ical" or "feed"
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Timezone string            `yaml:"timezone"`
	PageSize int               `yaml:"pageSize"`
}

// CalendarConfig holds the calendar sync configuration.
type CalendarConfig struct {
	Sources             []CalendarSourceConfig `yaml:"sources"`
	SyncIntervalSeconds int                    `yaml:"sync_interval_seconds"`
	SyncInterval        time.Duration          `yaml:"-"` // Derived from SyncIntervalSeconds
}

// BreakerConfig holds the per-device circuit breaker configuration.
type BreakerConfig struct {
	MaxFailures         int           `yaml:"max_failures"`
	ResetTimeoutSeconds int           `yaml:"reset_timeout_seconds"`
	ResetTimeout        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for operator web push alerts.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
	PoolSize   int    `yaml:"pool_size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.Backend == "" {
		cfg.Database.Backend = "postgres"
	}
	if cfg.Database.Backend != "postgres" && cfg.Database.Backend != "sqlite" {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.Database.Backend)
	}

	if cfg.Engine.IntervalSeconds <= 0 {
		cfg.Engine.IntervalSeconds = 300
	}
	cfg.Engine.Interval = time.Duration(cfg.Engine.IntervalSeconds) * time.Second

	if cfg.Engine.WorkerPoolSize <= 0 {
		cfg.Engine.WorkerPoolSize = 4
	}
	if cfg.Engine.MaxDispatchAttempts <= 0 {
		cfg.Engine.MaxDispatchAttempts = 3
	}
	if cfg.Engine.BackoffInitialMillis <= 0 {
		cfg.Engine.BackoffInitialMillis = 500
	}
	cfg.Engine.BackoffInitial = time.Duration(cfg.Engine.BackoffInitialMillis) * time.Millisecond
	if cfg.Engine.AttemptTimeoutSeconds <= 0 {
		cfg.Engine.AttemptTimeoutSeconds = 10
	}
	cfg.Engine.AttemptTimeout = time.Duration(cfg.Engine.AttemptTimeoutSeconds) * time.Second

	if cfg.Calendar.SyncIntervalSeconds <= 0 {
		cfg.Calendar.SyncIntervalSeconds = 600
	}
	cfg.Calendar.SyncInterval = time.Duration(cfg.Calendar.SyncIntervalSeconds) * time.Second

	for i := range cfg.Calendar.Sources {
		if cfg.Calendar.Sources[i].PageSize <= 0 {
			cfg.Calendar.Sources[i].PageSize = 100
		}
		if cfg.Calendar.Sources[i].Timezone == "" {
			cfg.Calendar.Sources[i].Timezone = "UTC"
		}
	}

	if cfg.Breaker.MaxFailures <= 0 {
		cfg.Breaker.MaxFailures = 5
	}
	if cfg.Breaker.ResetTimeoutSeconds <= 0 {
		cfg.Breaker.ResetTimeoutSeconds = 60
	}
	cfg.Breaker.ResetTimeout = time.Duration(cfg.Breaker.ResetTimeoutSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.PoolSize <= 0 {
		cfg.Push.PoolSize = 1
	}

	return &cfg, nil
}

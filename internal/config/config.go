// Package config loads the client configuration: built-in defaults, then an
// optional YAML file, then PAYFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/payflow/internal/storage"
)

// DefaultPath is where Load looks when no path is given.
var DefaultPath = filepath.Join("config", "payflow.yaml")

// Config is the full client configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Archive ArchiveConfig `yaml:"archive"`
	Daemon  DaemonConfig  `yaml:"daemon"`
}

// APIConfig configures the backend gateway.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url" env:"PAYFLOW_API_BASE_URL"`
	Timeout      time.Duration `yaml:"timeout" env:"PAYFLOW_API_TIMEOUT"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"PAYFLOW_API_MAX_BODY_BYTES"`
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"PAYFLOW_API_RATE_LIMIT"`
	Burst     int     `yaml:"burst" env:"PAYFLOW_API_BURST"`
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	RefreshThreshold time.Duration `yaml:"refresh_threshold" env:"PAYFLOW_SESSION_REFRESH_THRESHOLD"`
}

// StorageConfig selects where the session is persisted.
type StorageConfig struct {
	Backend       string `yaml:"backend" env:"PAYFLOW_STORAGE_BACKEND"`
	Path          string `yaml:"path" env:"PAYFLOW_STORAGE_PATH"`
	Key           string `yaml:"key" env:"PAYFLOW_STORAGE_KEY"`
	RedisAddr     string `yaml:"redis_addr" env:"PAYFLOW_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"PAYFLOW_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"PAYFLOW_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"PAYFLOW_REDIS_PREFIX"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"PAYFLOW_LOG_LEVEL"`
	Format string `yaml:"format" env:"PAYFLOW_LOG_FORMAT"`
}

// ArchiveConfig configures the PostgreSQL transaction archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" env:"PAYFLOW_ARCHIVE_ENABLED"`
	DSN     string `yaml:"dsn" env:"PAYFLOW_ARCHIVE_DSN"`
	Table   string `yaml:"table" env:"PAYFLOW_ARCHIVE_TABLE"`
}

// DaemonConfig configures the background refresher.
type DaemonConfig struct {
	ListenAddr      string `yaml:"listen_addr" env:"PAYFLOW_DAEMON_LISTEN_ADDR"`
	RefreshSchedule string `yaml:"refresh_schedule" env:"PAYFLOW_DAEMON_REFRESH_SCHEDULE"`
	ArchiveSchedule string `yaml:"archive_schedule" env:"PAYFLOW_DAEMON_ARCHIVE_SCHEDULE"`
	RecentLimit     int    `yaml:"recent_limit" env:"PAYFLOW_DAEMON_RECENT_LIMIT"`
	// Token guards the status endpoints; empty leaves them open.
	Token          string   `yaml:"token" env:"PAYFLOW_DAEMON_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"PAYFLOW_DAEMON_ALLOWED_ORIGINS"`
	RateLimit      float64  `yaml:"rate_limit" env:"PAYFLOW_DAEMON_RATE_LIMIT"`
	Burst          int      `yaml:"burst" env:"PAYFLOW_DAEMON_BURST"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:8080/api",
			Timeout:      30 * time.Second,
			MaxBodyBytes: 8 << 20,
			Burst:        1,
		},
		Session: SessionConfig{RefreshThreshold: 5 * time.Minute},
		Storage: StorageConfig{
			Backend: "file",
			Path:    filepath.Join(home, ".payflow", "session.json"),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Archive: ArchiveConfig{Table: "payflow_transactions"},
		Daemon: DaemonConfig{
			ListenAddr:      "127.0.0.1:9464",
			RefreshSchedule: "@every 1m",
			ArchiveSchedule: "@every 15m",
			RecentLimit:     5,
			RateLimit:       20,
			Burst:           40,
		},
	}
}

// Load builds the configuration from path (DefaultPath when empty) and the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	err := envdecode.Decode(c)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// Validate checks values the components cannot recover from.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if c.Session.RefreshThreshold < 0 {
		return fmt.Errorf("session.refresh_threshold must not be negative")
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file backend")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, file, redis", c.Storage.Backend)
	}

	if c.Daemon.RateLimit < 0 {
		return fmt.Errorf("daemon.rate_limit must not be negative")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive.dsn is required when the archive is enabled")
	}
	return nil
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.Storage.Backend,
		Path:          c.Storage.Path,
		Key:           c.Storage.Key,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		RedisPrefix:   c.Storage.RedisPrefix,
	}
}

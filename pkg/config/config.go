// Package config loads service configuration from an optional YAML file
// and environment overrides.
package config

import "time"

// Config is the root configuration shared by every binary.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Keys      KeysConfig      `yaml:"keys"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	// APIAddress is where the owner API and redirects are served.
	// Default: ":8080"
	APIAddress string `yaml:"api_address"`

	// RedirectAddress is where the redirect-only tier listens.
	// Default: ":8081"
	RedirectAddress string `yaml:"redirect_address"`

	// BaseURL prefixes keys in rendered short URLs.
	// Default: "http://localhost:8080"
	BaseURL string `yaml:"base_url"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is one of "postgres", "sqlite" or "memory".
	// Default: "postgres"
	Driver string `yaml:"driver"`

	// URL is the Postgres connection string.
	URL string `yaml:"url"`

	// SQLitePath is the database file used by the sqlite driver.
	// Default: "data/shortener.db"
	SQLitePath string `yaml:"sqlite_path"`

	// MaxConns caps the Postgres pool. Zero keeps the pgxpool default.
	MaxConns int32 `yaml:"max_conns"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	// CacheTTL bounds cached redirects. Default: 24h
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// NegativeTTL caches unknown keys. Zero disables it.
	NegativeTTL time.Duration `yaml:"negative_ttl"`
}

type AuthConfig struct {
	OIDCIssuer   string `yaml:"oidc_issuer"`
	OIDCAudience string `yaml:"oidc_audience"`

	// OwnerHeader trusts a gateway-set header for the owner ID when no
	// OIDC issuer is configured.
	OwnerHeader string `yaml:"owner_header"`
}

type KeysConfig struct {
	// Length of auto-generated keys. Default: 6
	Length int `yaml:"length"`

	// MaxAttempts before allocation reports exhaustion. Default: 20
	MaxAttempts int `yaml:"max_attempts"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// CreatePerWindow is the number of links one client may create per
	// window. Default: 15
	CreatePerWindow int `yaml:"create_per_window"`

	// Window. Default: 1h
	Window time.Duration `yaml:"window"`
}

type ReconcileConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a standard five-field cron expression.
	// Default: "17 3 * * *"
	Schedule string `yaml:"schedule"`

	// Timeout bounds a single run. Default: 10m
	Timeout time.Duration `yaml:"timeout"`

	// Grace leaves mappings clicked within this window alone, since their
	// counter increment may not have committed yet. Default: 1m
	Grace time.Duration `yaml:"grace"`
}

type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: "info"
	Level string `yaml:"level"`

	// File, when set, receives a rotated copy of the log.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path. Default: "/metrics"
	Path string `yaml:"path"`
}

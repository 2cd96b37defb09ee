package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIAddress, cfg.Server.APIAddress)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 6, cfg.Keys.Length)
	assert.Equal(t, 20, cfg.Keys.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Redis.CacheTTL)
	assert.Zero(t, cfg.Redis.NegativeTTL)
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultReconcileSchedule, cfg.Reconcile.Schedule)
	assert.Equal(t, time.Minute, cfg.Reconcile.Grace)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: "https://sho.rt"
  read_timeout: 5s
database:
  driver: sqlite
  sqlite_path: /var/lib/shortener/links.db
redis:
  enabled: false
rate_limit:
  enabled: false
keys:
  length: 8
reconcile:
  schedule: "*/30 * * * *"
  grace: 5m
logging:
  level: debug
  file: /var/log/shortener.log
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://sho.rt", cfg.Server.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/shortener/links.db", cfg.Database.SQLitePath)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 8, cfg.Keys.Length)
	assert.Equal(t, 20, cfg.Keys.MaxAttempts)
	assert.Equal(t, "*/30 * * * *", cfg.Reconcile.Schedule)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Grace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, DefaultMaxSizeMB, cfg.Logging.MaxSizeMB)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env@db:5432/links")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("OIDC_ISSUER", "https://id.example.com")
	t.Setenv("OIDC_AUDIENCE", "shortener")
	t.Setenv("SHORTENER_KEYS_LENGTH", "7")
	t.Setenv("SHORTENER_REDIS_NEGATIVE_TTL", "30s")
	t.Setenv("SHORTENER_METRICS_ENABLED", "false")

	cfg, err := Load(writeConfig(t, "database:\n  url: postgres://file@db/links\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@db:5432/links", cfg.Database.URL)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "https://id.example.com", cfg.Auth.OIDCIssuer)
	assert.Equal(t, "shortener", cfg.Auth.OIDCAudience)
	assert.Equal(t, 7, cfg.Keys.Length)
	assert.Equal(t, 30*time.Second, cfg.Redis.NegativeTTL)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("SHORTENER_KEYS_LENGTH", "seven")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHORTENER_KEYS_LENGTH")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"relative base url", func(c *Config) { c.Server.BaseURL = "sho.rt" }, "server.base_url"},
		{"key too long", func(c *Config) { c.Keys.Length = 21 }, "keys.length"},
		{"bad cron", func(c *Config) { c.Reconcile.Schedule = "every day" }, "reconcile.schedule"},
		{"rate limit without redis", func(c *Config) { c.Redis.Enabled = false }, "rate_limit.enabled"},
		{"issuer without audience", func(c *Config) { c.Auth.OIDCIssuer = "https://id.example.com" }, "auth.oidc_audience"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			var fields []string
			for _, fe := range ve.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	assert.NoError(t, Validate(Default()))
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration in this order: defaults, the YAML file at
// path (skipped when path is empty), environment overrides, validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
		ApplyDefaults(cfg)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads the deployment variables (DATABASE_URL,
// REDIS_URL, OIDC_ISSUER, OIDC_AUDIENCE) and SHORTENER_SECTION_FIELD names.
// A malformed value is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			*dst = val
		}
	}
	dur := func(name string, dst *time.Duration) {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	integer := func(name string, dst *int) {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("OIDC_ISSUER", &cfg.Auth.OIDCIssuer)
	str("OIDC_AUDIENCE", &cfg.Auth.OIDCAudience)

	str("SHORTENER_SERVER_API_ADDRESS", &cfg.Server.APIAddress)
	str("SHORTENER_SERVER_REDIRECT_ADDRESS", &cfg.Server.RedirectAddress)
	str("SHORTENER_SERVER_BASE_URL", &cfg.Server.BaseURL)
	dur("SHORTENER_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("SHORTENER_DATABASE_DRIVER", &cfg.Database.Driver)
	str("SHORTENER_DATABASE_SQLITE_PATH", &cfg.Database.SQLitePath)

	boolean("SHORTENER_REDIS_ENABLED", &cfg.Redis.Enabled)
	dur("SHORTENER_REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)
	dur("SHORTENER_REDIS_NEGATIVE_TTL", &cfg.Redis.NegativeTTL)

	str("SHORTENER_AUTH_OWNER_HEADER", &cfg.Auth.OwnerHeader)

	integer("SHORTENER_KEYS_LENGTH", &cfg.Keys.Length)
	integer("SHORTENER_KEYS_MAX_ATTEMPTS", &cfg.Keys.MaxAttempts)

	boolean("SHORTENER_RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	integer("SHORTENER_RATE_LIMIT_CREATE_PER_WINDOW", &cfg.RateLimit.CreatePerWindow)
	dur("SHORTENER_RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)

	boolean("SHORTENER_RECONCILE_ENABLED", &cfg.Reconcile.Enabled)
	str("SHORTENER_RECONCILE_SCHEDULE", &cfg.Reconcile.Schedule)
	dur("SHORTENER_RECONCILE_GRACE", &cfg.Reconcile.Grace)

	str("SHORTENER_LOGGING_LEVEL", &cfg.Logging.Level)
	str("SHORTENER_LOGGING_FILE", &cfg.Logging.File)

	boolean("SHORTENER_METRICS_ENABLED", &cfg.Metrics.Enabled)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

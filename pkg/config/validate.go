package config

import (
	"fmt"
	"net/url"
	"strings"

	"shortener/pkg/keycodec"

	"github.com/robfig/cron/v3"
)

// FieldError is a validation failure of one configuration field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, msg string) {
		errs = append(errs, FieldError{Field: field, Message: msg})
	}

	if u, err := url.Parse(cfg.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("server.base_url", "must be an absolute URL")
	}

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			add("database.url", "is required for the postgres driver")
		}
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			add("database.sqlite_path", "is required for the sqlite driver")
		}
	case "memory":
	default:
		add("database.driver", fmt.Sprintf("unknown driver %q (want postgres, sqlite or memory)", cfg.Database.Driver))
	}

	if cfg.Redis.Enabled && cfg.Redis.URL == "" {
		add("redis.url", "is required when redis is enabled")
	}
	if cfg.Redis.NegativeTTL < 0 {
		add("redis.negative_ttl", "must not be negative")
	}

	if cfg.Auth.OIDCIssuer != "" && cfg.Auth.OIDCAudience == "" {
		add("auth.oidc_audience", "is required when an issuer is configured")
	}

	if cfg.Keys.Length < keycodec.MinKeyLength || cfg.Keys.Length > keycodec.MaxKeyLength {
		add("keys.length", fmt.Sprintf("must be between %d and %d", keycodec.MinKeyLength, keycodec.MaxKeyLength))
	}
	if cfg.Keys.MaxAttempts < 1 {
		add("keys.max_attempts", "must be at least 1")
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.CreatePerWindow < 1 {
			add("rate_limit.create_per_window", "must be at least 1")
		}
		if cfg.RateLimit.Window <= 0 {
			add("rate_limit.window", "must be positive")
		}
		if !cfg.Redis.Enabled {
			add("rate_limit.enabled", "requires redis")
		}
	}

	if cfg.Reconcile.Enabled {
		if _, err := cron.ParseStandard(cfg.Reconcile.Schedule); err != nil {
			add("reconcile.schedule", fmt.Sprintf("invalid cron expression: %v", err))
		}
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path", "must start with /")
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// Package app wires configuration into the storage, cache, logging and
// HTTP components shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shortener/pkg/cache"
	"shortener/pkg/config"
	"shortener/pkg/logging"
	"shortener/pkg/metrics"
	"shortener/pkg/service"
	"shortener/pkg/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func NewLogger(cfg config.LoggingConfig) *logging.Logger {
	return logging.NewLoggerWithOptions(logging.Options{
		Level:      logging.LogLevel(strings.ToLower(cfg.Level)),
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
}

// OpenStore connects to the configured backend and applies its schema.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (storage.MappingStore, error) {
	var store storage.MappingStore
	switch cfg.Driver {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid database url: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = cfg.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		store = storage.NewPostgresMappingStore(pool)
	case "sqlite":
		s, err := storage.NewSQLiteMappingStore(storage.SQLiteConfig{Path: cfg.SQLitePath, BusyTimeout: cfg.BusyTimeout})
		if err != nil {
			return nil, err
		}
		store = s
	case "memory":
		store = storage.NewMemoryMappingStore()
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// OpenRedis returns nil when Redis is disabled.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewLinkService builds the service with a Redis cache when rdb is set.
func NewLinkService(cfg *config.Config, store storage.MappingStore, rdb *redis.Client, logger *logging.Logger, m *metrics.Metrics) *service.LinkService {
	var c cache.MappingCacheInterface = cache.NoopCache{}
	if rdb != nil {
		c = cache.NewMappingCache(rdb)
	}
	return service.NewLinkService(store, c, logger, service.Options{
		BaseURL: cfg.Server.BaseURL,
		Keys: service.AllocatorConfig{
			KeyLength:   cfg.Keys.Length,
			MaxAttempts: cfg.Keys.MaxAttempts,
		},
		Resolver: service.ResolverConfig{
			CacheTTL:         cfg.Redis.CacheTTL,
			NegativeCacheTTL: cfg.Redis.NegativeTTL,
		},
		Metrics: m,
	})
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, cfg config.ServerConfig, logger *logging.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info(shutdownCtx, "shutting down http server", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

// StartupTimeout bounds connecting to dependencies at startup.
const StartupTimeout = 30 * time.Second

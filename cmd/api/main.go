package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"shortener/pkg/app"
	"shortener/pkg/config"
	httphandler "shortener/pkg/http"
	"shortener/pkg/logging"
	"shortener/pkg/metrics"
	"shortener/pkg/middleware"
	"shortener/pkg/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load(os.Getenv("SHORTENER_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "api server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, app.StartupTimeout)
	defer cancel()

	store, err := app.OpenStore(startCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	rdb, err := app.OpenRedis(startCtx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var m *metrics.Metrics
	opts := httphandler.RouterOptions{MetricsPath: cfg.Metrics.Path}
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		opts.Metrics = m
		opts.MetricsHandler = promhttp.Handler()
	}

	linkService := app.NewLinkService(cfg, store, rdb, logger, m)

	switch {
	case cfg.Auth.OIDCIssuer != "":
		// The verifier fetches signing keys with this context for its lifetime.
		oauth, err := middleware.NewOAuthMiddleware(ctx, middleware.OAuthConfig{
			IssuerURL: cfg.Auth.OIDCIssuer,
			Audience:  cfg.Auth.OIDCAudience,
		}, logger)
		if err != nil {
			return err
		}
		opts.OAuth = oauth
	case cfg.Auth.OwnerHeader != "":
		opts.OwnerHeader = cfg.Auth.OwnerHeader
		logger.Warn(ctx, "owner identity taken from trusted header", "header", cfg.Auth.OwnerHeader)
	default:
		logger.Warn(ctx, "no identity provider configured, owner routes will reject every request")
	}

	if cfg.RateLimit.Enabled && rdb != nil {
		limiter := middleware.NewRedisLimiter(rdb, cfg.RateLimit.CreatePerWindow, cfg.RateLimit.Window)
		opts.CreateLimit = middleware.RateLimit(limiter, middleware.ClientAddr, cfg.RateLimit.Window, logger)
	}

	if cfg.Reconcile.Enabled {
		r := reconcile.NewReconciler(store, cfg.Reconcile.Timeout, cfg.Reconcile.Grace, logger, m)
		scheduler := reconcile.NewScheduler(r, cfg.Reconcile.Schedule)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	router := httphandler.NewRouter(httphandler.NewHandler(linkService, logger), opts)
	return app.Serve(ctx, cfg.Server.APIAddress, router, cfg.Server, logger)
}

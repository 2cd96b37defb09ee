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
		logger.Error(ctx, "redirect server failed", "error", err)
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
	router := httphandler.NewRedirectRouter(httphandler.NewHandler(linkService, logger), opts)
	return app.Serve(ctx, cfg.Server.RedirectAddress, router, cfg.Server, logger)
}

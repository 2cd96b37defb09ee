package main

import (
	"context"
	"fmt"
	"os"

	"shortener/pkg/app"
	"shortener/pkg/config"
	"shortener/pkg/logging"
	"shortener/pkg/storage"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "shortctl",
	Short: "Operator tooling for the link shortener",
	Long: `shortctl runs maintenance tasks against the link shortener's store:
schema migration, click counter reconciliation and click inspection.

Configuration is read from --config when set, then overridden by the
same environment variables the servers honour.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration and builds a logger from it.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
	return cfg, app.NewLogger(cfg.Logging), nil
}

// openStore connects to the configured store. The caller closes it.
func openStore(ctx context.Context, cfg *config.Config) (storage.MappingStore, error) {
	ctx, cancel := context.WithTimeout(ctx, app.StartupTimeout)
	defer cancel()
	return app.OpenStore(ctx, cfg.Database)
}

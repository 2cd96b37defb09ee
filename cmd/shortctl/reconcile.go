package main

import (
	"fmt"

	"shortener/pkg/reconcile"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reset click counters that disagree with recorded clicks",
	Long: `Reconcile recounts click events for every mapping and rewrites any
counter that drifted, for example after a crash between recording a
click and incrementing its counter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := reconcile.NewReconciler(store, cfg.Reconcile.Timeout, cfg.Reconcile.Grace, logger, nil).RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "corrected %d counter(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

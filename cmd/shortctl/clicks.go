package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"shortener/pkg/service"
	"shortener/pkg/storage"

	"github.com/spf13/cobra"
)

var clicksLimit int

var clicksCmd = &cobra.Command{
	Use:   "clicks <key>",
	Short: "Show a link's click total and most recent clicks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		m, err := store.FindByKey(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no link with key %q", args[0])
			}
			return err
		}
		summary, err := service.NewAnalyticsReader(store).Summary(cmd.Context(), m.ID, clicksLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s -> %s\n", m.Key, m.Destination)
		fmt.Fprintf(out, "total clicks: %d\n\n", summary.TotalClicks)

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CLICKED AT\tSOURCE IP\tREFERER\tUSER AGENT")
		for _, c := range summary.RecentClicks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				c.ClickedAt.UTC().Format(time.RFC3339), orDash(c.SourceIP), orDash(c.Referer), orDash(c.UserAgent))
		}
		return tw.Flush()
	},
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func init() {
	clicksCmd.Flags().IntVarP(&clicksLimit, "limit", "n", service.DefaultRecentClicks, "number of recent clicks to show")
	rootCmd.AddCommand(clicksCmd)
}

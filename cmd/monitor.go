package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newMonitorCmd creates the 'monitor' subcommand: the long-running
// harvest loop that backfills hourly snapshots until interrupted.
func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Runs the hourly harvest loop",
		Long: `Continuously enumerates pending hourly slots over the lookback window,
fetches each slot's snapshot (escalating to the live ranking when the
published one is stale), merges it into the daily archive, refreshes
topic posts, and updates the heat summary. Runs until SIGINT/SIGTERM.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Scheduler().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

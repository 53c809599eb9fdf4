package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRebuildHeatCmd creates the 'rebuild-heat' subcommand: a full
// regeneration of the rolling daily heat summary.
func newRebuildHeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-heat",
		Short: "Rebuilds the rolling daily heat summary",
		Long: `Walks the summary window back from today, aggregating each day's
archive. Days missing on disk are reconstructed from the published
hourly snapshots; unrecoverable days are skipped.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			summary, err := application.Heat().Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			application.Logger().Info("heat summary rebuilt",
				zap.Int("days", len(summary.Data)))
			return nil
		},
	}
}

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/archive"
	"github.com/trendline/hotarchive/internal/trend"
)

// newRefreshCmd creates the 'refresh' subcommand: a one-shot post
// refresh over one day's archive.
func newRefreshCmd() *cobra.Command {
	var (
		date      string
		maxTopics int
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refreshes post samples for one day's topics",
		Long: `Runs the post refresh pipeline once over the given day's archive:
every topic marked stale gets a fresh post sample via the search crawl,
falling back to the topic detail page when the crawl comes up empty.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := application.Logger()

			if date == "" {
				date = trend.DateLabel(time.Now())
			}
			summary, err := application.Posts().RefreshDate(cmd.Context(), date, maxTopics)
			if err != nil {
				if errors.Is(err, archive.ErrNoArchive) {
					return fmt.Errorf("no archive for %s; run monitor first", date)
				}
				return err
			}

			logger.Info("refresh finished",
				zap.String("date", date),
				zap.Strings("refreshed", summary.Refreshed),
				zap.Int("skipped", len(summary.Skipped)),
				zap.Strings("failed", summary.Failed))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "archive date to refresh (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&maxTopics, "max-topics", 0, "cap on refreshed topics (0 = no cap)")
	return cmd
}

// Package cmd defines and implements the CLI commands for the
// hotarchive executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trendline/hotarchive/internal/app"
	"github.com/trendline/hotarchive/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newRootCmd creates and configures the root command. Services are
// built in PersistentPreRunE so every subcommand gets a fully wired App
// through its context, and torn down again in PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotarchive",
		Short: "Harvests and archives the trending-topics ranking.",
		Long: `hotarchive continuously captures the hourly trending-topics ranking,
merges each snapshot into per-day archives, samples the top posts behind
every topic, and maintains a rolling daily heat summary.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, application))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if application, ok := cmd.Context().Value(appKey).(*app.App); ok && application != nil {
				application.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (built-in defaults apply when omitted)")

	cmd.AddCommand(newMonitorCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newRebuildHeatCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	application, ok := ctx.Value(appKey).(*app.App)
	if !ok || application == nil {
		return nil, errors.New("application services not initialized")
	}
	return application, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

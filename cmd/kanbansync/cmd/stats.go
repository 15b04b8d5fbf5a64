package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"kanbansync/internal/analytics"
)

func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize locally recorded command analytics",
		Long: "Show how often each command ran and how it failed. Recording is off unless\n" +
			"analytics.enabled is set in the config file or KANBANSYNC_ANALYTICS_ENABLED=true.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, cfg)
			if err != nil {
				return err
			}

			tracker, err := analytics.NewTracker(settings.AnalyticsPath, settings.AnalyticsEnabled)
			if err != nil {
				return err
			}
			cfg.atExit("analytics", tracker.Close)

			summary, err := tracker.Summary()
			if err != nil {
				return err
			}
			if !settings.AnalyticsEnabled {
				_, _ = fmt.Fprintln(stdout, "Analytics recording is disabled.")
			}

			now := time.Now()
			if cfg.Now != nil {
				now = cfg.Now()
			}
			analytics.WriteSummary(stdout, summary, now)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

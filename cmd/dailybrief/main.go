package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"DailyBrief/internal/app"
	"DailyBrief/internal/config"
	"DailyBrief/internal/logging"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "dailybrief",
		Short:         "dailybrief builds a personal news digest from RSS feeds",
		Long:          "Fetches configured feeds, ranks unseen articles against your topics, summarizes the best ones and delivers a markdown digest.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config.yaml (default $DAILY_BRIEF_CONFIG or ./config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		runCmd(&flags),
		scheduleCmd(&flags),
		sourcesCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, flags *globalFlags) (*app.Application, *slog.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}

func runCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the funnel once and deliver today's digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, _, err := setup(ctx, flags)
			if err != nil {
				return err
			}
			defer application.Close()

			summary, err := application.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", summary.ReportPath)
			return nil
		},
	}
}

func scheduleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the funnel on the configured cron expression until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, logger, err := setup(ctx, flags)
			if err != nil {
				return err
			}
			defer application.Close()

			err = application.Schedule(ctx)
			logger.Info("scheduler stopped")
			return err
		},
	}
}

func sourcesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Print circuit-breaker state for every known source",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer application.Close()

			list, err := application.SourceHealth(cmd.Context())
			if err != nil {
				return err
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tFAILURES\tLAST SUCCESS\tSTATE")
			for _, h := range list {
				state := "enabled"
				if h.DisabledAt(now) {
					state = "disabled until " + h.DisabledUntil.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", h.URL, h.ConsecutiveFailures, formatTime(h.LastSuccess), state)
			}
			return w.Flush()
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

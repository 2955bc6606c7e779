package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionstore/session"
)

var (
	sweepInterval time.Duration
	sweepSchedule string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions",
	Long: `Runs one expiry pass using expiry.max_inactivity and expiry.max_lifetime.
With --interval or --schedule (a cron expression) the pass repeats until
SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sweepSchedule != "" {
			if err := session.ValidateSchedule(sweepSchedule); err != nil {
				return err
			}
		}
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.store.Close()

		sweeper := session.NewSweeper(e.store, e.cfg.Expiry.MaxInactivity, e.cfg.Expiry.MaxLifeTime,
			session.WithSweepInterval(sweepInterval),
			session.WithSweepSchedule(sweepSchedule),
			session.WithSweepLogger(e.logger))

		if sweepInterval <= 0 && sweepSchedule == "" {
			if err := sweeper.SweepOnce(cmd.Context()); err != nil {
				return fmt.Errorf("sweeping: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "expired sessions removed")
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		e.logger.Info("sweeper started",
			slog.Duration("interval", sweepInterval),
			slog.String("schedule", sweepSchedule))
		sweeper.Run(ctx)
		e.logger.Info("sweeper stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Repeat the sweep at this interval until interrupted")
	sweepCmd.Flags().StringVar(&sweepSchedule, "schedule", "", "Repeat the sweep on this cron expression until interrupted")
}

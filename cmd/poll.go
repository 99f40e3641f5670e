package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/monitoring"
)

var pollInterval int

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Process the inbox on an interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, cfg.Monitoring)
		alerter := monitoring.NewAlerter(cfg.Monitoring)

		interval := pollInterval
		if interval <= 0 {
			interval = cfg.Pipeline.PollIntervalSecs
		}
		ticker := time.NewTicker(time.Duration(interval) * time.Second)
		defer ticker.Stop()

		zap.L().Info("polling started", zap.Int("interval_secs", interval))

		for {
			run, err := env.Controller.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				// A failed cycle is logged and retried on the next tick.
				zap.L().Error("poll cycle failed", zap.Error(err))
			} else if run.Counts != nil && run.Counts.Processed > 0 {
				snap, err := collector.Collect(ctx)
				if err != nil {
					zap.L().Warn("metrics collection failed", zap.Error(err))
				} else {
					alerter.SendAlerts(ctx, alerter.Evaluate(snap))
				}
			}

			select {
			case <-ctx.Done():
				zap.L().Info("polling stopped")
				return nil
			case <-ticker.C:
			}
		}

		zap.L().Info("polling stopped")
		return nil
	},
}

func init() {
	pollCmd.Flags().IntVar(&pollInterval, "interval", 0, "seconds between cycles (default from config)")
	rootCmd.AddCommand(pollCmd)
}

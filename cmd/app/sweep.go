package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rps_wager/internal/config"
	"rps_wager/internal/events"
	"rps_wager/internal/logger"
	"rps_wager/internal/scheduler"
)

// newSweepCmd runs a single idle sweep pass, for deployments that drive the
// sweep from an external cron instead of the in-process scheduler.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one idle sweep pass against the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg.LogLevel, cfg.LogJSON)
			ctx := cmd.Context()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var pub events.Publisher = events.Nop
			rdb, err := openRedis(ctx, cfg)
			if err != nil {
				logger.Warn("redis unavailable, events dropped", "error", err)
			}
			if rdb != nil {
				defer rdb.Close()
				pub = events.NewRedisPublisher(rdb, "")
			}

			timers := scheduler.NewTimers()
			defer timers.Stop()

			report, err := newEngine(store, timers, pub, cfg).Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled=%d timed_out=%d purged=%d\n",
				report.Cancelled, report.TimedOut, report.Purged)
			return nil
		},
	}
}

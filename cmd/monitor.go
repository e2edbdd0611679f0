package cmd

import (
	"context"
	"errors"

	"github.com/li-blockchain/rewards-collector/internal/config"
	"github.com/li-blockchain/rewards-collector/internal/metrics/prometheus"
	"github.com/li-blockchain/rewards-collector/internal/shutdown"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Collect new epoch windows as they finalize",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.NewConfig()
		if cmd.Flags().Changed("check-interval") {
			cfg.Collector.CheckInterval, _ = cmd.Flags().GetInt("check-interval")
		}
		l := newLogger(cfg, false)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		deps := buildCollector(ctx, cfg, l)

		start, err := deps.controller.ResolveStartEpoch(startEpochOverride(cmd), cfg.Collector.WatchStartEpoch)
		if err != nil {
			fatal(ctx, l, deps.notifier, "Failed to resolve start epoch", err)
		}

		// closed to stop the prometheus server
		prometheusShutdown := make(chan bool)
		if cfg.PrometheusConfig.Enabled {
			ps := prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, l)
			if err := ps.Start(prometheusShutdown); err != nil {
				fatal(ctx, l, deps.notifier, "Failed to start prometheus server", err)
			}
		}

		monitorErr := make(chan error, 1)
		go func() {
			monitorErr <- deps.controller.RunMonitor(ctx, start)
			cancel()
		}()

		l.Sugar().Infow("Started monitor", zap.Uint64("startEpoch", start))

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()
		done := make(chan bool)
		shutdown.ListenForShutdown(ctx, gracefulShutdown, done, func() {
			l.Sugar().Info("Shutting down after the current cycle...")
			cancel()
		}, 0, l)

		err = <-monitorErr
		close(prometheusShutdown)

		if err != nil && !errors.Is(err, context.Canceled) {
			fatal(context.Background(), l, deps.notifier, "Monitor failed", err)
		}
	},
}

func init() {
	monitorCmd.Flags().Uint64("start-epoch", 0, "Epoch to start from, overriding the checkpoint and ledger")
	monitorCmd.Flags().Int("check-interval", 60, "Seconds between polls once caught up")
}

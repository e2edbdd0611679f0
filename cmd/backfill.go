package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/li-blockchain/rewards-collector/internal/config"
	"github.com/li-blockchain/rewards-collector/internal/shutdown"
	"github.com/li-blockchain/rewards-collector/pkg/collector"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Collect every epoch window from the start epoch up to the finalized tip",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.NewConfig()
		if cmd.Flags().Changed("delay") {
			cfg.Collector.BackfillDelay, _ = cmd.Flags().GetInt("delay")
		}
		l := newLogger(cfg, false)

		ctx, cancel := shutdown.WithSignalCancel(context.Background(), l)
		defer cancel()

		opts := make([]collector.ControllerOpt, 0)
		showProgress, _ := cmd.Flags().GetBool("progress")
		var bar *progressbar.ProgressBar
		if showProgress {
			bar = progressbar.NewOptions64(-1,
				progressbar.OptionSetDescription("Backfilling epochs"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("epochs"),
			)
		}

		var start uint64
		if bar != nil {
			opts = append(opts, collector.WithProgress(func(epoch uint64, latest uint64) {
				interval := cfg.Collector.EpochInterval
				if latest >= start {
					bar.ChangeMax64(int64((latest-start)/interval + 1))
				}
				bar.Set64(int64((epoch-start)/interval + 1)) //nolint:errcheck
			}))
		}

		deps := buildCollector(ctx, cfg, l, opts...)

		start, err := deps.controller.ResolveStartEpoch(startEpochOverride(cmd), cfg.Collector.StartEpoch)
		if err != nil {
			fatal(ctx, l, deps.notifier, "Failed to resolve start epoch", err)
		}

		res, err := deps.controller.RunBackfill(ctx, start)
		if bar != nil {
			bar.Finish() //nolint:errcheck
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				l.Sugar().Infow("Backfill interrupted",
					zap.Uint64("lastEpoch", res.LastEpoch),
					zap.Int("epochs", res.Epochs),
				)
				return
			}
			fatal(ctx, l, deps.notifier, "Backfill failed", err)
		}
	},
}

func init() {
	backfillCmd.Flags().Uint64("start-epoch", 0, "Epoch to start from, overriding the checkpoint and ledger")
	backfillCmd.Flags().Int("delay", 15, "Seconds to wait between cycles")
	backfillCmd.Flags().Bool("progress", false, "Render a progress bar")
}

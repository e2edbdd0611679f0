package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/li-blockchain/rewards-collector/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var collectCmd = &cobra.Command{
	Use:   "collect <epoch>",
	Short: "Collect rewards for a single epoch window",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.NewConfig()
		l := newLogger(cfg, false)
		ctx := context.Background()

		epoch, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			l.Sugar().Fatalw("Invalid epoch", zap.String("epoch", args[0]), zap.Error(err))
		}

		deps := buildCollector(ctx, cfg, l)
		res, err := deps.controller.CollectEpoch(ctx, epoch)
		if err != nil {
			fatal(ctx, l, deps.notifier, "Failed to collect epoch", err)
		}

		fmt.Printf("Epoch %d: %d withdrawals (%d exits), %d proposals, %d ledger records\n",
			res.Epoch, res.Withdrawals, res.Exits, res.Proposals, res.LedgerRecords)
	},
}

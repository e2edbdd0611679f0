package cmd

import (
	"os"
	"strconv"

	"github.com/li-blockchain/rewards-collector/internal/config"
	"github.com/li-blockchain/rewards-collector/pkg/aggregator"
	"github.com/li-blockchain/rewards-collector/pkg/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <from-epoch> <to-epoch>",
	Short: "Summarize node earnings for an inclusive epoch range",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.NewConfig()
		l := newLogger(cfg, true)

		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}

		from, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			l.Sugar().Fatalw("Invalid from epoch", zap.String("epoch", args[0]), zap.Error(err))
		}
		to, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			l.Sugar().Fatalw("Invalid to epoch", zap.String("epoch", args[1]), zap.Error(err))
		}

		rawFormat, _ := cmd.Flags().GetString("format")
		format, err := aggregator.ParseReportFormat(rawFormat)
		if err != nil {
			l.Sugar().Fatalw("Invalid format", zap.Error(err))
		}

		ra := aggregator.NewRewardAggregator(ledger.NewLedgerStore(cfg.LedgerPath(), l), l)
		summary, err := ra.Summarize(from, to)
		if err != nil {
			l.Sugar().Fatalw("Failed to summarize rewards",
				zap.String("ledger", cfg.LedgerPath()),
				zap.Error(err),
			)
		}

		if err := aggregator.Render(os.Stdout, summary, format); err != nil {
			l.Sugar().Fatalw("Failed to render summary", zap.Error(err))
		}
	},
}

func init() {
	summaryCmd.Flags().String("format", string(aggregator.ReportFormat_Text), "Output format: text, json or csv")
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/li-blockchain/rewards-collector/internal/config"
	"github.com/li-blockchain/rewards-collector/internal/logger"
	"github.com/li-blockchain/rewards-collector/internal/metrics"
	"github.com/li-blockchain/rewards-collector/pkg/clients/beaconchain"
	"github.com/li-blockchain/rewards-collector/pkg/clients/webhook"
	"github.com/li-blockchain/rewards-collector/pkg/collector"
	"github.com/li-blockchain/rewards-collector/pkg/ledger"
	"github.com/li-blockchain/rewards-collector/pkg/processor"
	"github.com/li-blockchain/rewards-collector/pkg/registry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config, console bool) *zap.Logger {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Console: console})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return l
}

// collectorDeps holds everything a collecting command wires together.
type collectorDeps struct {
	notifier   *webhook.Notifier
	controller *collector.CollectionController
}

// fatal notifies the webhook, if any, and exits with status 1.
func fatal(ctx context.Context, l *zap.Logger, n *webhook.Notifier, msg string, err error) {
	if n != nil {
		if nErr := n.Notify(ctx, fmt.Sprintf("Rewards collector failed: %s: %v", msg, err)); nErr != nil {
			l.Sugar().Errorw("Failed to send failure notification", zap.Error(nErr))
		}
	}
	l.Sugar().Fatalw(msg, zap.Error(err))
}

func buildCollector(ctx context.Context, cfg *config.Config, l *zap.Logger, opts ...collector.ControllerOpt) *collectorDeps {
	notifier := webhook.NewNotifier(cfg.Webhook.Url, nil, l)

	if err := cfg.ValidateCollector(); err != nil {
		fatal(ctx, l, notifier, "Invalid configuration", err)
	}

	clients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		fatal(ctx, l, notifier, "Failed to setup metrics sink", err)
	}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, clients)
	if err != nil {
		fatal(ctx, l, notifier, "Failed to setup metrics sink", err)
	}

	validators := registry.NewValidatorRegistry(cfg.ValidatorCsv, l)
	if _, err := validators.Load(); err != nil {
		fatal(ctx, l, notifier, "Failed to load validator registry", err)
	}

	client := beaconchain.NewBeaconchainClient(&beaconchain.BeaconchainClientConfig{
		ApiUrl:        cfg.RewardsApi.Url,
		ApiKey:        cfg.RewardsApi.ApiKey,
		BeaconNodeUrl: cfg.BeaconNode.Url,
		RateLimit:     cfg.RewardsApi.RateLimit,
	}, l, beaconchain.WithMetrics(sink))

	ep := processor.NewEventProcessor(client, validators, l)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fatal(ctx, l, notifier, "Failed to create output directory", err)
	}
	ls := ledger.NewLedgerStore(cfg.LedgerPath(), l)

	opts = append([]collector.ControllerOpt{
		collector.WithMetrics(sink),
		collector.WithNotifier(notifier),
	}, opts...)

	cc := collector.NewCollectionController(&collector.CollectionControllerConfig{
		ChunkSize:     cfg.Collector.ChunkSize,
		EpochInterval: cfg.Collector.EpochInterval,
		BackfillDelay: cfg.BackfillDelay(),
		CheckInterval: cfg.CheckInterval(),
		RetryDelay:    cfg.RetryDelay(),
	}, validators, client, ep, ls, l, opts...)

	l.Sugar().Infow("Collector ready",
		zap.Int("validators", validators.Len()),
		zap.String("ledger", ls.Path()),
		zap.Int("chunkSize", cfg.Collector.ChunkSize),
		zap.Float64("rateLimit", cfg.RewardsApi.RateLimit),
	)

	return &collectorDeps{
		notifier:   notifier,
		controller: cc,
	}
}

// startEpochOverride returns the --start-epoch value only when it was set.
func startEpochOverride(cmd *cobra.Command) *uint64 {
	if !cmd.Flags().Changed("start-epoch") {
		return nil
	}
	v, err := cmd.Flags().GetUint64("start-epoch")
	if err != nil {
		return nil
	}
	return &v
}

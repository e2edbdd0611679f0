package cmd

import (
	"os"
	"strings"

	"github.com/li-blockchain/rewards-collector/internal/config"
	"github.com/li-blockchain/rewards-collector/pkg/clients/beaconchain"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "rewards",
	Short: "Collects validator rewards into a parquet ledger and summarizes node earnings",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().String(config.ValidatorCsv, "", `Path to the validator csv (index,pubkey,bond_type,node,pool_id)`)
	rootCmd.PersistentFlags().String(config.OutputDir, ".", `Directory holding the ledger and checkpoint files`)

	rootCmd.PersistentFlags().String(config.RewardsApiUrl, beaconchain.DefaultApiUrl, `Rewards api base url`)
	rootCmd.PersistentFlags().String(config.RewardsApiKey, "", `Rewards api key (required for collection)`)
	rootCmd.PersistentFlags().Float64(config.RewardsApiRateLimit, beaconchain.DefaultRateLimit, `Maximum requests per second`)
	rootCmd.PersistentFlags().String(config.BeaconNodeUrl, beaconchain.DefaultBeaconNodeUrl, `e.g. "http://<hostname>:5052"`)

	rootCmd.PersistentFlags().Int(config.CollectorChunkSize, 100, `Validators per api request`)
	rootCmd.PersistentFlags().Uint64(config.CollectorEpochInterval, 100, `Epochs covered by one collection cycle`)
	rootCmd.PersistentFlags().Uint64(config.CollectorStartEpoch, 0, `Backfill start epoch when there is no checkpoint or ledger`)
	rootCmd.PersistentFlags().Uint64(config.CollectorWatchStartEpoch, 0, `Monitor start epoch when there is no checkpoint or ledger`)
	rootCmd.PersistentFlags().Int(config.CollectorBackfillDelay, 15, `Seconds to wait between backfill cycles`)
	rootCmd.PersistentFlags().Int(config.CollectorCheckInterval, 60, `Seconds between monitor polls`)
	rootCmd.PersistentFlags().Int(config.CollectorRetryDelay, 60, `Seconds to wait before retrying a failed cycle`)

	rootCmd.PersistentFlags().String(config.WebhookUrl, "", `Discord webhook for completion and failure notifications`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(epochCmd)
	rootCmd.AddCommand(runVersionCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
	config.BindLegacyEnv(viper.GetViper()) //nolint:errcheck
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "REWARDS"

const (
	Debug = "debug"

	ValidatorCsv = "csv"
	OutputDir    = "output"

	RewardsApiUrl       = "rewards-api.url"
	RewardsApiKey       = "rewards-api.api-key"
	RewardsApiRateLimit = "rewards-api.rate-limit"
	BeaconNodeUrl       = "beacon-node.url"

	CollectorChunkSize       = "collector.chunk-size"
	CollectorEpochInterval   = "collector.epoch-interval"
	CollectorStartEpoch      = "collector.start-epoch"
	CollectorWatchStartEpoch = "collector.watch-start-epoch"
	CollectorBackfillDelay   = "collector.backfill-delay"
	CollectorCheckInterval   = "collector.check-interval"
	CollectorRetryDelay      = "collector.retry-delay"

	WebhookUrl = "webhook.url"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample-rate"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"
)

// legacyEnvAliases maps config keys to the bare environment variable names
// used by existing deployments.
var legacyEnvAliases = map[string]string{
	RewardsApiKey:            "API_KEY",
	ValidatorCsv:             "VALIDATOR_CSV",
	OutputDir:                "OUTPUT_DIR",
	CollectorStartEpoch:      "EPOCH_START",
	CollectorWatchStartEpoch: "EPOCH_WATCH_START",
	CollectorEpochInterval:   "EPOCH_INTERVAL",
	CollectorBackfillDelay:   "BACKFILL_DELAY",
	CollectorCheckInterval:   "CHECK_INTERVAL",
	WebhookUrl:               "DISCORD_WEBHOOK_URL",
}

var (
	ErrMissingApiKey       = errors.New("rewards api key is required")
	ErrMissingValidatorCsv = errors.New("validator csv path is required")
)

const LedgerFileName = "rewards_master.parquet"

type Config struct {
	Debug            bool
	ValidatorCsv     string
	OutputDir        string
	RewardsApi       RewardsApiConfig
	BeaconNode       BeaconNodeConfig
	Collector        CollectorConfig
	Webhook          WebhookConfig
	DataDogConfig    DataDogConfig
	PrometheusConfig PrometheusConfig
}

type RewardsApiConfig struct {
	Url       string
	ApiKey    string
	RateLimit float64
}

type BeaconNodeConfig struct {
	Url string
}

type CollectorConfig struct {
	ChunkSize       int
	EpochInterval   uint64
	StartEpoch      uint64
	WatchStartEpoch uint64
	// seconds
	BackfillDelay int
	CheckInterval int
	RetryDelay    int
}

type WebhookConfig struct {
	Url string
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}

// BindLegacyEnv registers the bare environment names for keys that have one.
// Must be called after flags are bound so the prefixed name still wins.
func BindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnvAliases {
		normalized := normalizeFlagName(key)
		prefixed := fmt.Sprintf("%s_%s", ENV_PREFIX, strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key)))
		if err := v.BindEnv(normalized, prefixed, legacy); err != nil {
			return errors.Wrapf(err, "failed to bind env for %s", key)
		}
	}
	return nil
}

func NewConfig() *Config {
	return NewConfigFromViper(viper.GetViper())
}

func NewConfigFromViper(v *viper.Viper) *Config {
	get := func(key string) string {
		return normalizeFlagName(key)
	}
	return &Config{
		Debug:        v.GetBool(get(Debug)),
		ValidatorCsv: v.GetString(get(ValidatorCsv)),
		OutputDir:    v.GetString(get(OutputDir)),

		RewardsApi: RewardsApiConfig{
			Url:       v.GetString(get(RewardsApiUrl)),
			ApiKey:    v.GetString(get(RewardsApiKey)),
			RateLimit: v.GetFloat64(get(RewardsApiRateLimit)),
		},

		BeaconNode: BeaconNodeConfig{
			Url: v.GetString(get(BeaconNodeUrl)),
		},

		Collector: CollectorConfig{
			ChunkSize:       v.GetInt(get(CollectorChunkSize)),
			EpochInterval:   v.GetUint64(get(CollectorEpochInterval)),
			StartEpoch:      v.GetUint64(get(CollectorStartEpoch)),
			WatchStartEpoch: v.GetUint64(get(CollectorWatchStartEpoch)),
			BackfillDelay:   v.GetInt(get(CollectorBackfillDelay)),
			CheckInterval:   v.GetInt(get(CollectorCheckInterval)),
			RetryDelay:      v.GetInt(get(CollectorRetryDelay)),
		},

		Webhook: WebhookConfig{
			Url: v.GetString(get(WebhookUrl)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    v.GetBool(get(DataDogStatsdEnabled)),
				Url:        v.GetString(get(DataDogStatsdUrl)),
				SampleRate: v.GetFloat64(get(DataDogStatsdSampleRate)),
			},
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: v.GetBool(get(PrometheusEnabled)),
			Port:    v.GetInt(get(PrometheusPort)),
		},
	}
}

func (c *Config) LedgerPath() string {
	return filepath.Join(c.OutputDir, LedgerFileName)
}

func (c *Config) BackfillDelay() time.Duration {
	return time.Duration(c.Collector.BackfillDelay) * time.Second
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Collector.CheckInterval) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Collector.RetryDelay) * time.Second
}

// Validate checks settings every command relies on.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	return nil
}

// ValidateCollector checks the settings needed to talk to the rewards api.
func (c *Config) ValidateCollector() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.RewardsApi.ApiKey == "" {
		return ErrMissingApiKey
	}
	if c.ValidatorCsv == "" {
		return ErrMissingValidatorCsv
	}
	if c.RewardsApi.Url == "" {
		return errors.New("rewards api url is required")
	}
	if c.BeaconNode.Url == "" {
		return errors.New("beacon node url is required")
	}
	if c.Collector.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", c.Collector.ChunkSize)
	}
	if c.Collector.EpochInterval == 0 {
		return errors.New("epoch interval must be positive")
	}
	return nil
}

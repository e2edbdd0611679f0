package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_EpochProcessed  = "epoch.processed"
	Metric_Incr_EventsCollected = "events.collected"
	Metric_Incr_CycleFailed     = "cycle.failed"
	Metric_Incr_ApiRequest      = "api.request"

	Metric_Gauge_CurrentEpoch   = "epoch.current"
	Metric_Gauge_FinalizedEpoch = "epoch.finalized"
	Metric_Gauge_LedgerRecords  = "ledger.records"

	Metric_Timing_EpochDuration      = "epoch.duration"
	Metric_Timing_ApiRequestDuration = "api.request.duration"
)

var (
	Label_Kind     = "kind"
	Label_Endpoint = "endpoint"
	Label_Status   = "status"
	Label_Mode     = "mode"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_EpochProcessed,
			Labels: []string{Label_Mode},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_EventsCollected,
			Labels: []string{Label_Kind},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_CycleFailed,
			Labels: []string{Label_Mode},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_ApiRequest,
			Labels: []string{Label_Endpoint, Label_Status},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_CurrentEpoch,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_FinalizedEpoch,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_LedgerRecords,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_EpochDuration,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_ApiRequestDuration,
			Labels: []string{Label_Endpoint},
		},
	},
}

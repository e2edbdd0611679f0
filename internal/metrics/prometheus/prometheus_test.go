package prometheus

import (
	"testing"
	"time"

	"github.com/li-blockchain/rewards-collector/internal/metrics/metricsTypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func Test_PrometheusMetricsClient(t *testing.T) {
	registry := prometheus.NewRegistry()
	client, err := NewPrometheusMetricsClient(&PrometheusMetricsConfig{
		Metrics:    metricsTypes.MetricTypes,
		Registerer: registry,
	}, zap.NewNop())
	assert.Nil(t, err)

	t.Run("Should count events by kind and ignore unknown labels", func(t *testing.T) {
		err := client.Incr(metricsTypes.Metric_Incr_EventsCollected, []metricsTypes.MetricsLabel{
			{Name: metricsTypes.Label_Kind, Value: "withdrawal"},
			{Name: "unregistered", Value: "x"},
		}, 3)
		assert.Nil(t, err)

		c := client.counters[metricsTypes.Metric_Incr_EventsCollected]
		assert.Equal(t, float64(3), testutil.ToFloat64(c.WithLabelValues("withdrawal")))
	})
	t.Run("Should fill missing labels with an empty value", func(t *testing.T) {
		err := client.Incr(metricsTypes.Metric_Incr_ApiRequest, []metricsTypes.MetricsLabel{
			{Name: metricsTypes.Label_Endpoint, Value: "proposals"},
		}, 1)
		assert.Nil(t, err)

		c := client.counters[metricsTypes.Metric_Incr_ApiRequest]
		assert.Equal(t, float64(1), testutil.ToFloat64(c.WithLabelValues("proposals", "")))
	})
	t.Run("Should set gauges and observe timings", func(t *testing.T) {
		assert.Nil(t, client.Gauge(metricsTypes.Metric_Gauge_CurrentEpoch, 12345, nil))
		assert.Nil(t, client.Timing(metricsTypes.Metric_Timing_EpochDuration, 2*time.Second, nil))

		g := client.gauges[metricsTypes.Metric_Gauge_CurrentEpoch]
		assert.Equal(t, float64(12345), testutil.ToFloat64(g.WithLabelValues()))
	})
	t.Run("Should ignore unknown metrics", func(t *testing.T) {
		assert.Nil(t, client.Incr("does.not.exist", nil, 1))
	})
	t.Run("Should use prometheus safe names", func(t *testing.T) {
		assert.Equal(t, "api_request_duration", metricName(metricsTypes.Metric_Timing_ApiRequestDuration))
	})
}

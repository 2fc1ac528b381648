package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetricsClient_TrialCompleted(t *testing.T) {
	TrialsCompletedTotal.Reset()
	TrialDuration.Reset()

	c := NewPrometheusMetricsClient("", "", false, nil)
	c.TrialCompleted("b1", "w1", 12.5)

	assert.Equal(t, float64(1), testutil.ToFloat64(TrialsCompletedTotal.WithLabelValues("b1", "w1")))
}

func TestPrometheusMetricsClient_TrialFailed(t *testing.T) {
	TrialsFailedTotal.Reset()

	c := NewPrometheusMetricsClient("", "", false, nil)
	c.TrialFailed("b1", "w1", "guardrail_violation")

	assert.Equal(t, float64(1), testutil.ToFloat64(TrialsFailedTotal.WithLabelValues("b1", "w1", "guardrail_violation")))
}

func TestPrometheusMetricsClient_ObjectiveValue(t *testing.T) {
	ObjectiveValueGauge.Reset()

	c := NewPrometheusMetricsClient("", "", false, nil)
	c.ObjectiveValue("b1", "p99_latency_ms", 42.0)

	assert.Equal(t, 42.0, testutil.ToFloat64(ObjectiveValueGauge.WithLabelValues("b1", "p99_latency_ms")))
}

func TestPrometheusMetricsClient_RollbackRecorded(t *testing.T) {
	RollbacksTotal.Reset()

	c := NewPrometheusMetricsClient("", "", false, nil)
	c.RollbackRecorded("b1", "w1", 3, "completed")
	c.RollbackRecorded("b1", "w1", 3, "failed")

	assert.Equal(t, float64(1), testutil.ToFloat64(RollbacksTotal.WithLabelValues("b1", "3", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(RollbacksTotal.WithLabelValues("b1", "3", "failed")))
}

func TestPrometheusMetricsClient_NoPushWhenDisabled(t *testing.T) {
	c := NewPrometheusMetricsClient("job", "http://example.invalid", false, nil)
	assert.Nil(t, c.push, "push client must stay nil when pushEnabled is false")
}

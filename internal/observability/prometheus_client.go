package observability

import (
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/godon-project/breeder-worker/internal/domain"
)

var (
	// TrialsCompletedTotal counts completed trials by breeder and worker.
	TrialsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breeder_trials_completed_total",
			Help: "Total number of trials completed successfully",
		},
		[]string{"breeder_id", "worker_id"},
	)
	// TrialDuration records per-trial wall-clock duration.
	TrialDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breeder_trial_duration_seconds",
			Help:    "Trial duration in seconds, from ask to tell",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"breeder_id", "worker_id"},
	)
	// TrialsFailedTotal counts failed trials by breeder, worker, and reason.
	TrialsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breeder_trials_failed_total",
			Help: "Total number of trials that failed before completion",
		},
		[]string{"breeder_id", "worker_id", "reason"},
	)
	// GuardrailViolationsTotal counts guardrail rejections by guardrail name.
	GuardrailViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breeder_guardrail_violations_total",
			Help: "Total number of guardrail violations observed",
		},
		[]string{"breeder_id", "worker_id", "guardrail"},
	)
	// RollbacksTotal counts rollback attempts by target and outcome
	// (status ∈ {completed, failed}), per spec's rollbacks_total{status}.
	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breeder_rollbacks_total",
			Help: "Total number of rollbacks attempted, by outcome status",
		},
		[]string{"breeder_id", "target_id", "status"},
	)
	// ObjectiveValueGauge tracks the most recent objective value observed.
	ObjectiveValueGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breeder_objective_value",
			Help: "Most recent value observed for an objective",
		},
		[]string{"breeder_id", "objective"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(TrialsCompletedTotal)
	prometheus.MustRegister(TrialDuration)
	prometheus.MustRegister(TrialsFailedTotal)
	prometheus.MustRegister(GuardrailViolationsTotal)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(ObjectiveValueGauge)
}

// PrometheusMetricsClient implements domain.MetricsClient against the
// default Prometheus registry, optionally pushing to a Pushgateway after
// every recorded signal when push is non-nil.
type PrometheusMetricsClient struct {
	logger *slog.Logger
	push   *push.Pusher
}

// NewPrometheusMetricsClient constructs a PrometheusMetricsClient. When
// pushEnabled is true, every recorded metric is also pushed to
// pushgatewayURL under jobName; pushes are best-effort and failures are
// only logged, since the local registry (scraped via statusserver's
// /metrics) remains the metrics of record.
func NewPrometheusMetricsClient(jobName, pushgatewayURL string, pushEnabled bool, logger *slog.Logger) *PrometheusMetricsClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &PrometheusMetricsClient{logger: logger}
	if pushEnabled && pushgatewayURL != "" {
		c.push = push.New(pushgatewayURL, jobName).Gatherer(prometheus.DefaultGatherer)
	}
	return c
}

func (c *PrometheusMetricsClient) maybePush() {
	if c.push == nil {
		return
	}
	if err := c.push.Push(); err != nil {
		c.logger.Warn("metrics pushgateway push failed", slog.Any("error", err))
	}
}

// TrialCompleted implements domain.MetricsClient.
func (c *PrometheusMetricsClient) TrialCompleted(breederID, workerID string, durationSeconds float64) {
	TrialsCompletedTotal.WithLabelValues(breederID, workerID).Inc()
	TrialDuration.WithLabelValues(breederID, workerID).Observe(durationSeconds)
	c.maybePush()
}

// TrialFailed implements domain.MetricsClient.
func (c *PrometheusMetricsClient) TrialFailed(breederID, workerID, reason string) {
	TrialsFailedTotal.WithLabelValues(breederID, workerID, reason).Inc()
	c.maybePush()
}

// GuardrailViolation implements domain.MetricsClient.
func (c *PrometheusMetricsClient) GuardrailViolation(breederID, workerID, guardrail string) {
	GuardrailViolationsTotal.WithLabelValues(breederID, workerID, guardrail).Inc()
	c.maybePush()
}

// RollbackRecorded implements domain.MetricsClient.
func (c *PrometheusMetricsClient) RollbackRecorded(breederID, workerID string, targetID int, status string) {
	_ = workerID
	RollbacksTotal.WithLabelValues(breederID, strconv.Itoa(targetID), status).Inc()
	c.maybePush()
}

// ObjectiveValue implements domain.MetricsClient.
func (c *PrometheusMetricsClient) ObjectiveValue(breederID, objective string, value float64) {
	ObjectiveValueGauge.WithLabelValues(breederID, objective).Set(value)
	c.maybePush()
}

var _ domain.MetricsClient = (*PrometheusMetricsClient)(nil)

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godon-project/breeder-worker/internal/adapter/study/memory"
	"github.com/godon-project/breeder-worker/internal/domain"
	"github.com/godon-project/breeder-worker/internal/reconnaissance"
)

type fakeEffectuation struct {
	calls int
	err   error
}

func (f *fakeEffectuation) Apply(ctx domain.Context, target domain.Target, params domain.ParamAssignment) error {
	f.calls++
	return f.err
}

type fakeBackend struct {
	values map[string]float64
}

func (f *fakeBackend) Measure(ctx domain.Context, target domain.Target, spec domain.ReconnaissanceSpec) (float64, error) {
	return f.values[spec.Query], nil
}

type fakeMetrics struct {
	completed  int
	failed     []string
	violations []string
}

func (f *fakeMetrics) TrialCompleted(breederID, workerID string, durationSeconds float64) { f.completed++ }
func (f *fakeMetrics) TrialFailed(breederID, workerID, reason string)                     { f.failed = append(f.failed, reason) }
func (f *fakeMetrics) GuardrailViolation(breederID, workerID, guardrail string) {
	f.violations = append(f.violations, guardrail)
}
func (f *fakeMetrics) RollbackRecorded(breederID, workerID string, targetID int, status string) {}
func (f *fakeMetrics) ObjectiveValue(breederID, objective string, value float64) {}

func baseConfig() domain.BreederConfig {
	return domain.BreederConfig{
		Breeder: domain.BreederIdentity{Name: "test", UUID: "breeder-1"},
		Run: domain.Run{
			CompletionCriteria: domain.CompletionCriteria{
				Iterations: domain.Iterations{Min: 0, Max: 3},
			},
		},
		Objectives: []domain.Objective{
			{Name: "throughput", Direction: domain.DirectionMaximize, Reconnaissance: domain.ReconnaissanceSpec{Service: "fake", Query: "throughput", Samples: 1}},
		},
		Settings: domain.Settings{
			Sysctl: map[string]domain.ParamConfig{
				"net.core.netdev_budget": {Constraints: []domain.Constraint{{Lower: f64p(100), Upper: f64p(600), Step: f64p(50), LowerIsInt: true, UpperIsInt: true, StepIsInt: true}}},
			},
		},
	}
}

func f64p(v float64) *float64 { return &v }

func newTestWorker(t *testing.T, cfg domain.BreederConfig, eff domain.EffectuationAdapter, backend *fakeBackend, metrics *fakeMetrics) *Worker {
	t.Helper()
	reg := memory.NewRegistry()
	study := reg.CreateStudy(StudyName(cfg.Breeder.UUID, domain.SamplerRandom, cfg.Run.Parallel), cfg.Directions())

	recon := reconnaissance.New(nil, map[string]domain.ReconnaissanceService{"fake": backend})
	target := domain.Target{ID: 1, Address: "10.0.0.1"}

	return New(cfg, target, "worker-1", Deps{
		Study: study, Registry: reg, Effectuation: eff,
		Reconnaissance: recon, Metrics: metrics,
	})
}

func TestWorker_RunStopsAtMaxIterations(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	eff := &fakeEffectuation{}
	metrics := &fakeMetrics{}
	backend := &fakeBackend{values: map[string]float64{"throughput": 42}}
	w := newTestWorker(t, cfg, eff, backend, metrics)

	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 3, eff.calls)
	assert.Equal(t, 3, metrics.completed)
	assert.Equal(t, "completed", w.Snapshot().State)
	assert.Equal(t, 3, w.Snapshot().TrialNumber)
}

func TestWorker_StopsEarlyOnQualityAchieved(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Run.CompletionCriteria.Iterations.Max = 100
	cfg.Run.CompletionCriteria.QualityAchieved = true
	threshold := 10.0
	cfg.Objectives[0].QualityThreshold = &threshold // maximize, first measurement (42) already clears it

	eff := &fakeEffectuation{}
	metrics := &fakeMetrics{}
	backend := &fakeBackend{values: map[string]float64{"throughput": 42}}
	w := newTestWorker(t, cfg, eff, backend, metrics)

	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 1, eff.calls)
}

func TestWorker_GuardrailViolationFailsTrialButLoopContinues(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Guardrails = []domain.Guardrail{
		{Name: "cpu", HardLimit: 80, Reconnaissance: domain.ReconnaissanceSpec{Service: "fake", Query: "cpu", Samples: 1}},
	}

	eff := &fakeEffectuation{}
	metrics := &fakeMetrics{}
	backend := &fakeBackend{values: map[string]float64{"throughput": 42, "cpu": 99}}
	w := newTestWorker(t, cfg, eff, backend, metrics)

	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 3, eff.calls)
	assert.Equal(t, 0, metrics.completed)
	assert.Equal(t, []string{"cpu", "cpu", "cpu"}, metrics.violations)

	trials, err := w.study.Trials(context.Background())
	require.NoError(t, err)
	require.Len(t, trials, 3)
	for _, tr := range trials {
		assert.Equal(t, domain.TrialStateFail, tr.State, "a guardrail violation must record TrialStateFail, not Pruned")
		assert.Nil(t, tr.Values, "a failed trial must carry no values")
	}
}

func TestWorker_EffectuationFailureFailsTrialButLoopContinues(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	eff := &fakeEffectuation{err: assert.AnError}
	metrics := &fakeMetrics{}
	backend := &fakeBackend{values: map[string]float64{"throughput": 42}}
	w := newTestWorker(t, cfg, eff, backend, metrics)

	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 3, eff.calls)
	assert.Equal(t, 3, len(metrics.failed))
	assert.Equal(t, 0, metrics.completed)
}

func TestWorker_StopsOnContextCancellation(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Run.CompletionCriteria.Iterations.Max = 1000
	eff := &fakeEffectuation{}
	metrics := &fakeMetrics{}
	backend := &fakeBackend{values: map[string]float64{"throughput": 42}}
	w := newTestWorker(t, cfg, eff, backend, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Run(ctx))
	assert.Equal(t, "stopped", w.Snapshot().State)
}

func TestAssignSampler_Deterministic(t *testing.T) {
	t.Parallel()
	a := AssignSampler("worker-123", 5)
	b := AssignSampler("worker-123", 5)
	assert.Equal(t, a, b)
}

func TestAssignSampler_TruncatesAvailableToParallel(t *testing.T) {
	t.Parallel()
	// S5: parallel=3 -> available=[tpe, nsga2, random], hash(worker_id) mod 3.
	available := domain.AllSamplerKinds[:3]
	assert.Equal(t, []domain.SamplerKind{domain.SamplerTPE, domain.SamplerNSGA2, domain.SamplerRandom}, available)
	assert.Contains(t, available, AssignSampler("worker-123", 3))
}

func TestStudyName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc_tpe_study", StudyName("abc", domain.SamplerTPE, 3))
}

func TestStudyName_SingleWorkerOmitsSamplerSegment(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc_study", StudyName("abc", domain.SamplerTPE, 1))
}

func TestParseDeadline_RespectsTimingEnd(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.CreationTS = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.Run.CompletionCriteria.Timing.End = "1h"

	dl, err := parseDeadline(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.CreationTS.Add(time.Hour), dl)
}

package rollback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godon-project/breeder-worker/internal/adapter/study/memory"
	"github.com/godon-project/breeder-worker/internal/domain"
)

type fakeEffectuation struct {
	applyErr error
	applied  domain.ParamAssignment
}

func (f *fakeEffectuation) Apply(ctx domain.Context, target domain.Target, params domain.ParamAssignment) error {
	f.applied = params
	return f.applyErr
}

func newManager(t *testing.T, eff domain.EffectuationAdapter, strategy domain.RollbackStrategy) (*Manager, domain.Study) {
	t.Helper()
	registry := memory.NewRegistry()
	study := registry.CreateStudy("t_study", []domain.Direction{domain.DirectionMinimize})
	m := New(study, eff, nil, nil, nil, domain.Target{ID: 0}, 0, strategy)
	return m, study
}

func TestHandleGuardrailViolation_CrossesThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	strategy := domain.RollbackStrategy{ConsecutiveFailures: 3, TargetState: domain.TargetStatePrevious, OnFailure: domain.OnFailureStop}
	m, _ := newManager(t, &fakeEffectuation{}, strategy)

	require.NoError(t, m.HandleGuardrailViolation(ctx))
	needs, err := m.NeedsRollback(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	require.NoError(t, m.HandleGuardrailViolation(ctx))
	require.NoError(t, m.HandleGuardrailViolation(ctx))

	needs, err = m.NeedsRollback(ctx)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestHandleSuccessfulTrial_ResetsCounter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	strategy := domain.RollbackStrategy{ConsecutiveFailures: 2, TargetState: domain.TargetStatePrevious}
	m, _ := newManager(t, &fakeEffectuation{}, strategy)

	require.NoError(t, m.HandleGuardrailViolation(ctx))
	require.NoError(t, m.HandleSuccessfulTrial(ctx, domain.ParamAssignment{"a": domain.NewIntValue(1)}))

	rec, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
	assert.Equal(t, domain.RollbackNormal, rec.State)
	assert.Contains(t, rec.PreviousParams, "a")
}

func TestMaybeExecuteRollback_RestoresPreviousParams(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	strategy := domain.RollbackStrategy{ConsecutiveFailures: 1, TargetState: domain.TargetStatePrevious, OnFailure: domain.OnFailureStop}
	eff := &fakeEffectuation{}
	m, _ := newManager(t, eff, strategy)

	require.NoError(t, m.HandleSuccessfulTrial(ctx, domain.ParamAssignment{"a": domain.NewIntValue(7)}))
	require.NoError(t, m.HandleGuardrailViolation(ctx))

	executed, err := m.MaybeExecuteRollback(ctx)
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Contains(t, eff.applied, "a")

	rec, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RollbackCompleted, rec.State)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
}

func TestMaybeExecuteRollback_NoParamsToRestore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	strategy := domain.RollbackStrategy{ConsecutiveFailures: 1, TargetState: domain.TargetStatePrevious, OnFailure: domain.OnFailureContinue}
	m, _ := newManager(t, &fakeEffectuation{}, strategy)

	require.NoError(t, m.HandleGuardrailViolation(ctx))
	executed, err := m.MaybeExecuteRollback(ctx)
	require.NoError(t, err)
	assert.True(t, executed)

	rec, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RollbackFailed, rec.State)
}

func TestMaybeExecuteRollback_OnFailureStopReturnsError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	strategy := domain.RollbackStrategy{ConsecutiveFailures: 1, TargetState: domain.TargetStatePrevious, OnFailure: domain.OnFailureStop}
	eff := &fakeEffectuation{applyErr: assertError("apply failed")}
	m, _ := newManager(t, eff, strategy)

	require.NoError(t, m.HandleSuccessfulTrial(ctx, domain.ParamAssignment{"a": domain.NewIntValue(1)}))
	require.NoError(t, m.HandleGuardrailViolation(ctx))

	_, err := m.MaybeExecuteRollback(ctx)
	require.Error(t, err)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }

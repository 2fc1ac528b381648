// Package rollback implements the per-target rollback state machine:
// tracking consecutive guardrail failures, deciding when a target needs
// rolling back, and executing the restore through the effectuation
// adapter.
package rollback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// Manager drives the rollback state machine for one target against a
// domain.Study's user_attrs (the cross-worker coordination point) and a
// domain.EffectuationAdapter to perform the restore.
type Manager struct {
	study        domain.Study
	effectuation domain.EffectuationAdapter
	metrics      domain.MetricsClient
	lock         domain.RollbackLock // optional, may be nil
	logger       *slog.Logger

	target   domain.Target
	targetID int
	strategy domain.RollbackStrategy
}

// New constructs a Manager. lock may be nil, in which case nothing
// prevents a double-triggered rollback; the last-write-wins state write
// keeps the outcome idempotent.
func New(study domain.Study, effectuation domain.EffectuationAdapter, metrics domain.MetricsClient, lock domain.RollbackLock, logger *slog.Logger, target domain.Target, targetID int, strategy domain.RollbackStrategy) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		study: study, effectuation: effectuation, metrics: metrics, lock: lock, logger: logger,
		target: target, targetID: targetID, strategy: strategy,
	}
}

func (m *Manager) stateKey() string {
	return fmt.Sprintf("rollback_state_target_%d", m.targetID)
}

// EnsureInitialized writes the initial "normal" rollback record if one
// isn't already present for this target.
func (m *Manager) EnsureInitialized(ctx domain.Context) error {
	attrs, err := m.study.GetUserAttrs(ctx)
	if err != nil {
		return fmt.Errorf("rollback: get user attrs: %w", err)
	}
	if _, ok := attrs[m.stateKey()]; ok {
		return nil
	}

	initial := domain.RollbackRecord{State: domain.RollbackNormal, UpdatedAt: nowFunc()}
	return m.write(ctx, initial)
}

// Get loads the current rollback record, initializing it first if absent.
func (m *Manager) Get(ctx domain.Context) (domain.RollbackRecord, error) {
	attrs, err := m.study.GetUserAttrs(ctx)
	if err != nil {
		return domain.RollbackRecord{}, fmt.Errorf("rollback: get user attrs: %w", err)
	}

	raw, ok := attrs[m.stateKey()]
	if !ok {
		if err := m.EnsureInitialized(ctx); err != nil {
			return domain.RollbackRecord{}, err
		}
		return domain.RollbackRecord{State: domain.RollbackNormal, UpdatedAt: nowFunc()}, nil
	}

	var rec domain.RollbackRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.RollbackRecord{}, fmt.Errorf("rollback: decode state: %w", err)
	}
	return rec, nil
}

// write persists rec under the target's state key, incrementing its
// version for optimistic concurrency. The underlying Study.SetUserAttr is
// last-write-wins: a write never fails on a stale version by itself, so
// this is idempotent rather than strictly linearizable. Callers that need
// stronger single-flight guarantees should additionally hold a
// domain.RollbackLock around the read-modify-write (see
// Manager.MaybeExecuteRollback).
func (m *Manager) write(ctx domain.Context, rec domain.RollbackRecord) error {
	rec.Version++
	rec.UpdatedAt = nowFunc()
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("rollback: encode state: %w", err)
	}
	if err := m.study.SetUserAttr(ctx, m.stateKey(), string(buf)); err != nil {
		return fmt.Errorf("rollback: set user attr: %w", err)
	}
	m.logger.Debug("updated rollback state", slog.Int("target", m.targetID), slog.Int("version", rec.Version), slog.String("state", string(rec.State)))
	return nil
}

// NeedsRollback reports whether the current record has crossed the
// strategy's consecutive-failure threshold.
func (m *Manager) NeedsRollback(ctx domain.Context) (bool, error) {
	rec, err := m.Get(ctx)
	if err != nil {
		return false, err
	}
	needs := rec.NeedsRollback(m.strategy)
	if needs {
		m.logger.Warn("consecutive failures crossed threshold, rollback needed",
			slog.Int("target", m.targetID), slog.Int("consecutive_failures", rec.ConsecutiveFailures),
			slog.Int("threshold", m.strategy.ConsecutiveFailures))
	}
	return needs, nil
}

// HandleGuardrailViolation increments the consecutive-failure counter and
// flips the record to needs_rollback once the threshold is crossed.
func (m *Manager) HandleGuardrailViolation(ctx domain.Context) error {
	rec, err := m.Get(ctx)
	if err != nil {
		return err
	}
	rec.ConsecutiveFailures++

	if rec.NeedsRollback(m.strategy) {
		rec.State = domain.RollbackNeedsRollback
	} else {
		rec.State = domain.RollbackNormal
	}

	return m.write(ctx, rec)
}

// HandleSuccessfulTrial resets the failure counter and records params as
// the last-known-good set to restore to on a future rollback.
func (m *Manager) HandleSuccessfulTrial(ctx domain.Context, params domain.ParamAssignment) error {
	rec, err := m.Get(ctx)
	if err != nil {
		return err
	}
	rec.ConsecutiveFailures = 0
	rec.State = domain.RollbackNormal
	rec.PreviousParams = params
	return m.write(ctx, rec)
}

// MaybeExecuteRollback executes a rollback if the current record needs
// one. When a RollbackLock is configured, it single-flights the critical
// section across the worker fleet; on failure to acquire the lock it
// simply skips (another worker is presumed to be handling it), relying on
// the idempotent state write to converge either way.
func (m *Manager) MaybeExecuteRollback(ctx domain.Context) (bool, error) {
	needs, err := m.NeedsRollback(ctx)
	if err != nil || !needs {
		return false, err
	}

	if m.lock != nil {
		acquired, err := m.lock.TryAcquire(ctx, m.stateKey(), int64(30*time.Second/time.Second))
		if err != nil {
			m.logger.Warn("rollback lock acquisition error, proceeding without lock", slog.Any("error", err))
		} else if !acquired {
			m.logger.Info("rollback already in flight on another worker, skipping", slog.Int("target", m.targetID))
			return false, nil
		} else {
			defer func() { _ = m.lock.Release(ctx, m.stateKey()) }()
		}
	}

	return true, m.executeRollback(ctx)
}

func (m *Manager) executeRollback(ctx domain.Context) error {
	m.logger.Info("executing rollback", slog.Int("target", m.targetID))

	rec, err := m.Get(ctx)
	if err != nil {
		return err
	}

	params, err := m.resolveRestoreParams(ctx, rec)
	if err != nil {
		return m.onRollbackFailure(ctx, rec, err)
	}
	if params == nil {
		return m.onRollbackFailure(ctx, rec, domain.ErrNoParamsToRestore)
	}

	rec.State = domain.RollbackInProgress
	if err := m.write(ctx, rec); err != nil {
		return err
	}

	if err := m.effectuation.Apply(ctx, m.target, params); err != nil {
		return m.onRollbackFailure(ctx, rec, fmt.Errorf("rollback apply: %w", err))
	}

	rec.State = domain.RollbackCompleted
	rec.ConsecutiveFailures = 0
	if err := m.write(ctx, rec); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RollbackRecorded("", "", m.targetID, "completed")
	}
	return nil
}

func (m *Manager) resolveRestoreParams(ctx domain.Context, rec domain.RollbackRecord) (domain.ParamAssignment, error) {
	switch m.strategy.TargetState {
	case domain.TargetStateBest:
		best, err := m.study.BestTrials(ctx)
		if err != nil {
			return nil, fmt.Errorf("rollback: load best trials: %w", err)
		}
		if len(best) == 0 {
			return nil, fmt.Errorf("%w: no best trial found", domain.ErrNoParamsToRestore)
		}
		return best[0].Params, nil
	case domain.TargetStateBaseline:
		return domain.ParamAssignment{}, nil
	default: // previous
		if rec.PreviousParams == nil {
			return nil, nil
		}
		return rec.PreviousParams, nil
	}
}

func (m *Manager) onRollbackFailure(ctx domain.Context, rec domain.RollbackRecord, cause error) error {
	m.logger.Error("rollback execution failed", slog.Any("error", cause))
	if m.metrics != nil {
		m.metrics.RollbackRecorded("", "", m.targetID, "failed")
	}

	rec.LastError = cause.Error()

	switch m.strategy.OnFailure {
	case domain.OnFailureContinue:
		rec.State = domain.RollbackFailed
		if err := m.write(ctx, rec); err != nil {
			return err
		}
		return nil
	case domain.OnFailureSkipTarget:
		rec.State = domain.RollbackSkipTarget
		if err := m.write(ctx, rec); err != nil {
			return err
		}
		return nil
	default: // stop
		rec.State = domain.RollbackFailed
		if err := m.write(ctx, rec); err != nil {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrRollbackFailed, cause)
	}
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

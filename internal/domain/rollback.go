package domain

import "time"

// RollbackState is the rollback state machine's current phase for one
// target, persisted as a study user-attr so any worker in the fleet can
// observe and drive it.
type RollbackState string

const (
	RollbackNormal        RollbackState = "normal"
	RollbackNeedsRollback RollbackState = "needs_rollback"
	RollbackInProgress    RollbackState = "in_progress"
	RollbackCompleted     RollbackState = "completed"
	RollbackFailed        RollbackState = "failed"
	RollbackSkipTarget    RollbackState = "skip_target"
)

// RollbackRecord is the full rollback bookkeeping for one target, stored
// JSON-encoded under a per-target study user-attr key. Version is
// incremented on every write so a reader can detect a racing writer;
// writes themselves are last-write-wins and do not check it.
type RollbackRecord struct {
	State               RollbackState   `json:"state"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Version             int             `json:"version"`
	PreviousParams      ParamAssignment `json:"previous_params,omitempty"`
	BestParams          ParamAssignment `json:"best_params,omitempty"`
	BaselineParams      ParamAssignment `json:"baseline_params,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
	LastError           string          `json:"last_error,omitempty"`
}

// NeedsRollback reports whether the record has accumulated enough
// consecutive guardrail failures to cross the strategy's threshold.
func (r RollbackRecord) NeedsRollback(strategy RollbackStrategy) bool {
	return r.ConsecutiveFailures >= strategy.ConsecutiveFailures
}

// ResolveParams picks the parameter set a rollback should restore, per the
// strategy's target_state. A nil/empty return means ErrNoParamsToRestore
// should be raised by the caller.
func (r RollbackRecord) ResolveParams(strategy RollbackStrategy) ParamAssignment {
	switch strategy.TargetState {
	case TargetStateBest:
		return r.BestParams
	case TargetStateBaseline:
		return r.BaselineParams
	default: // TargetStatePrevious, and any unrecognized value falls back to it.
		return r.PreviousParams
	}
}

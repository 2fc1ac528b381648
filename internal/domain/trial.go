package domain

import "time"

// TrialState mirrors the lifecycle a single optimization trial moves through.
type TrialState int

const (
	TrialStateRunning TrialState = iota
	TrialStateComplete
	TrialStatePruned
	TrialStateFail
)

// String renders the trial state for logging and storage.
func (s TrialState) String() string {
	switch s {
	case TrialStateRunning:
		return "running"
	case TrialStateComplete:
		return "complete"
	case TrialStatePruned:
		return "pruned"
	case TrialStateFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Trial is one ask/tell round: a parameter assignment, the objective values
// it produced (once told), and whatever guardrail outcome gated it.
type Trial struct {
	Number     int
	Params     ParamAssignment
	Values     []float64
	State      TrialState
	UserAttrs  map[string]string
	SystemAttrs map[string]string
	CreatedAt  time.Time
	CompletedAt time.Time
}

// FrozenTrial is a trial shared from a peer study via cooperation; it
// carries enough information to be re-enqueued with AddTrial on the
// recipient study without being re-run.
type FrozenTrial struct {
	Params ParamAssignment
	Values []float64
	State  TrialState
}

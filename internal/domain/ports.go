package domain

// ReconnaissanceService measures a metric against a running target after a
// trial's parameters have been applied, returning one scalar sample.
// Implementations live under internal/adapter/reconnaissance/<service>;
// internal/reconnaissance.Sampler calls one repeatedly and aggregates.
type ReconnaissanceService interface {
	// Measure evaluates spec.Query once and returns its scalar value.
	// Repetition per spec.Samples, the spec.Interval wait and aggregation
	// per spec.Aggregation are done by the caller.
	Measure(ctx Context, target Target, spec ReconnaissanceSpec) (float64, error)
}

// EffectuationAdapter applies a parameter assignment to a remote target and
// reports whether it succeeded, so the worker loop can penalize the trial
// on failure instead of crashing it.
type EffectuationAdapter interface {
	// Apply pushes params to target and blocks until the remote workflow
	// finishes (or times out).
	Apply(ctx Context, target Target, params ParamAssignment) error
}

// CooperationStrategy decides, for a completed trial, whether it should be
// shared into peer studies, and performs the sharing.
type CooperationStrategy interface {
	// ShouldShare reports whether trial (scored against completed, already
	// having run through all objectives) should be shared per cfg.
	ShouldShare(cfg Cooperation, trial Trial, completed []Trial) bool

	// Share pushes trial into every peer study found via registry. When
	// shareWithinBreeder is false, peers sharing this breeder's study-name
	// prefix are skipped.
	Share(ctx Context, registry StudyRegistry, selfStudyName string, trial Trial, shareWithinBreeder bool) error
}

// MetricsClient records worker-level observability signals. The Prometheus
// adapter under internal/observability pushes these to a local registry and
// optionally a Pushgateway.
type MetricsClient interface {
	TrialCompleted(breederID, workerID string, durationSeconds float64)
	TrialFailed(breederID, workerID, reason string)
	GuardrailViolation(breederID, workerID, guardrail string)
	// RollbackRecorded records a rollback attempt's outcome for a target
	// (status is "completed" or "failed").
	RollbackRecorded(breederID, workerID string, targetID int, status string)
	ObjectiveValue(breederID, objective string, value float64)
}

// RollbackLock provides best-effort mutual exclusion around the rollback
// critical section, to reduce (not eliminate) the chance of two workers
// double-triggering a rollback for the same target at once. Callers must
// still treat rollback as idempotent: this is a mitigation on top of the
// store's last-write-wins state writes.
type RollbackLock interface {
	// TryAcquire attempts to take the lock for key, returning false if
	// already held. A successful acquisition expires automatically after
	// ttl if not released.
	TryAcquire(ctx Context, key string, ttl int64) (bool, error)

	// Release gives up a lock previously acquired by this process.
	Release(ctx Context, key string) error
}

// EventPublisher emits progress/state events for external observers,
// generalizing the original controller's out-of-band state callback.
type EventPublisher interface {
	Publish(ctx Context, topic string, event ProgressEvent) error
}

// ProgressEvent is one point-in-time snapshot of a breeder run, published
// periodically and on terminal transitions.
type ProgressEvent struct {
	BreederID    string            `json:"breeder_id"`
	WorkerID     string            `json:"worker_id"`
	TrialNumber  int               `json:"trial_number"`
	State        string            `json:"state"`
	BestValues   []float64         `json:"best_values,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	EmittedAtUnix int64            `json:"emitted_at_unix"`
}

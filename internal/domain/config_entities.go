package domain

import "time"

// Direction is the optimization direction of an objective.
type Direction string

const (
	// DirectionMinimize means lower objective values are better.
	DirectionMinimize Direction = "minimize"
	// DirectionMaximize means higher objective values are better.
	DirectionMaximize Direction = "maximize"
)

// Aggregation is the reduction method applied to reconnaissance samples.
type Aggregation string

const (
	AggregationMedian Aggregation = "median"
	AggregationMean   Aggregation = "mean"
	AggregationMin    Aggregation = "min"
	AggregationMax    Aggregation = "max"
)

// ReconnaissanceSpec configures how a metric is measured after a trial is
// applied. The source configuration historically spells this key both
// "reconnaissance" and "reconaissance" (sic); config.LoadBreederConfig accepts both
// (spec.md §9) and normalizes into this struct, so by the time code reaches
// here the misspelling is already resolved.
type ReconnaissanceSpec struct {
	Service             string        `yaml:"service" json:"service" validate:"required"`
	Query               string        `yaml:"query" json:"query" validate:"required"`
	Samples             int           `yaml:"samples" json:"samples" validate:"min=1"`
	Interval            time.Duration `yaml:"interval" json:"interval"`
	StabilizationSeconds time.Duration `yaml:"stabilization_seconds" json:"stabilization_seconds"`
	Aggregation         Aggregation   `yaml:"aggregation" json:"aggregation"`
}

// Objective is one optimization target.
type Objective struct {
	Name             string             `yaml:"name" json:"name" validate:"required"`
	Direction        Direction          `yaml:"direction" json:"direction" validate:"required,oneof=minimize maximize"`
	Reconnaissance   ReconnaissanceSpec `yaml:"reconnaissance" json:"reconnaissance"`
	QualityThreshold *float64           `yaml:"quality_threshold" json:"quality_threshold"`
}

// Guardrail is a hard numeric safety limit, binary rather than optimized.
type Guardrail struct {
	Name           string             `yaml:"name" json:"name" validate:"required"`
	HardLimit      float64            `yaml:"hard_limit" json:"hard_limit"`
	Reconnaissance ReconnaissanceSpec `yaml:"reconnaissance" json:"reconnaissance"`
}

// Constraint is either a categorical value set or a numeric range; exactly
// one of the two shapes is populated, mirroring the source configuration's
// "list of either {values} or {lower,upper,step}" shape.
type Constraint struct {
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`

	Lower *float64 `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper *float64 `yaml:"upper,omitempty" json:"upper,omitempty"`
	Step  *float64 `yaml:"step,omitempty" json:"step,omitempty"`

	// LowerIsInt/UpperIsInt/StepIsInt record whether the source value was an
	// integer literal, since YAML/JSON numbers lose that distinction once
	// parsed into float64; the Suggester needs it to choose suggest_int vs
	// suggest_float.
	LowerIsInt bool `yaml:"-" json:"-"`
	UpperIsInt bool `yaml:"-" json:"-"`
	StepIsInt  bool `yaml:"-" json:"-"`
}

// IsCategorical reports whether this constraint carries a values list.
func (c Constraint) IsCategorical() bool { return len(c.Values) > 0 }

// IsNumericRange reports whether this constraint carries a full
// lower/upper/step numeric range.
func (c Constraint) IsNumericRange() bool {
	return c.Lower != nil && c.Upper != nil && c.Step != nil
}

// IsAllInteger reports whether lower, upper and step were all integer
// literals, used by the Suggester to decide suggest_int vs suggest_float.
func (c Constraint) IsAllInteger() bool {
	return c.LowerIsInt && c.UpperIsInt && c.StepIsInt
}

// ParamCategory is the kind of system surface a parameter belongs to.
type ParamCategory string

const (
	CategorySysctl  ParamCategory = "sysctl"
	CategorySysfs   ParamCategory = "sysfs"
	CategoryCPUFreq ParamCategory = "cpufreq"
	CategoryEthtool ParamCategory = "ethtool"
)

// ParamConfig is one configured parameter's constraints, as supplied in
// settings.{category}.{name}. For ethtool this sits one level deeper, under
// settings.ethtool.{interface}.{option}.
type ParamConfig struct {
	Constraints []Constraint `yaml:"constraints" json:"constraints"`
}

// Settings is the full settings block: sysctl/sysfs/cpufreq are flat
// name->config maps; ethtool nests once more under interface name.
type Settings struct {
	Sysctl  map[string]ParamConfig            `yaml:"sysctl,omitempty" json:"sysctl,omitempty"`
	Sysfs   map[string]ParamConfig            `yaml:"sysfs,omitempty" json:"sysfs,omitempty"`
	CPUFreq map[string]ParamConfig            `yaml:"cpufreq,omitempty" json:"cpufreq,omitempty"`
	Ethtool map[string]map[string]ParamConfig `yaml:"ethtool,omitempty" json:"ethtool,omitempty"`
}

// ShareStrategy names a cooperation sharing policy.
type ShareStrategy string

const (
	ShareProbabilistic ShareStrategy = "probabilistic"
	ShareBest          ShareStrategy = "best"
	ShareWorst         ShareStrategy = "worst"
	ShareExtremes      ShareStrategy = "extremes"
)

// Cooperation configures inter-worker trial sharing.
type Cooperation struct {
	Active                bool          `yaml:"active" json:"active"`
	ShareStrategy         ShareStrategy `yaml:"share_strategy" json:"share_strategy"`
	Probability           float64       `yaml:"probability" json:"probability"`
	TopPercentile         float64       `yaml:"top_percentile" json:"top_percentile"`
	BottomPercentile      float64       `yaml:"bottom_percentile" json:"bottom_percentile"`
	MinTrialsForFiltering int           `yaml:"min_trials_for_filtering" json:"min_trials_for_filtering"`
	// ShareWithinBreeder is not read from config: it is set automatically
	// to run.parallel > 1 (sibling sampler studies of the same breeder are
	// only worth sharing into when there is more than one of them).
	ShareWithinBreeder bool `yaml:"-" json:"-"`
}

// RollbackConfig is the per-target rollback toggle and strategy reference.
type RollbackConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Strategy string `yaml:"strategy" json:"strategy"`
}

// Target is one remote host the breeder tunes.
type Target struct {
	ID       int            `yaml:"id" json:"id"`
	Address  string         `yaml:"address" json:"address" validate:"required"`
	Username string         `yaml:"username" json:"username"`
	SSHKey   string         `yaml:"ssh_key" json:"ssh_key"`
	Rollback RollbackConfig `yaml:"rollback" json:"rollback"`
}

// Effectuation configures the remote-apply target list.
type Effectuation struct {
	Targets []Target `yaml:"targets" json:"targets"`
}

// RollbackAfterAction is what to do once a rollback completes.
type RollbackAfterAction string

const (
	AfterPause    RollbackAfterAction = "pause"
	AfterContinue RollbackAfterAction = "continue"
	AfterStop     RollbackAfterAction = "stop"
)

// RollbackOnFailure is what to do when the rollback itself fails.
type RollbackOnFailure string

const (
	OnFailureStop        RollbackOnFailure = "stop"
	OnFailureContinue    RollbackOnFailure = "continue"
	OnFailureSkipTarget  RollbackOnFailure = "skip_target"
)

// RollbackTargetState selects which parameter set a rollback restores.
type RollbackTargetState string

const (
	TargetStatePrevious RollbackTargetState = "previous"
	TargetStateBest     RollbackTargetState = "best"
	TargetStateBaseline RollbackTargetState = "baseline"
)

// RollbackAfter describes the post-rollback action and its duration (used
// only when Action == AfterPause).
type RollbackAfter struct {
	Action   RollbackAfterAction `yaml:"action" json:"action"`
	Duration time.Duration       `yaml:"duration" json:"duration"`
}

// RollbackStrategy is a named block in config.rollback_strategies.
type RollbackStrategy struct {
	ConsecutiveFailures int                  `yaml:"consecutive_failures" json:"consecutive_failures"`
	TargetState         RollbackTargetState  `yaml:"target_state" json:"target_state"`
	OnFailure           RollbackOnFailure    `yaml:"on_failure" json:"on_failure"`
	After               RollbackAfter        `yaml:"after" json:"after"`
}

// Iterations bounds the trial count.
type Iterations struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Timing bounds the wall-clock budget, End in the "{N}[dhm]" format.
type Timing struct {
	End string `yaml:"end" json:"end"`
}

// CompletionCriteria ORs together count, deadline, and quality predicates.
type CompletionCriteria struct {
	Iterations      Iterations `yaml:"iterations" json:"iterations"`
	Timing          Timing     `yaml:"timing" json:"timing"`
	QualityAchieved bool       `yaml:"quality_achieved" json:"quality_achieved"`
}

// Run holds the parallelism and completion-criteria knobs.
type Run struct {
	Parallel           int                `yaml:"parallel" json:"parallel" validate:"min=1"`
	CompletionCriteria CompletionCriteria `yaml:"completion_criteria" json:"completion_criteria"`
}

// BreederIdentity names the tuning job.
type BreederIdentity struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	UUID string `yaml:"uuid" json:"uuid" validate:"required"`
}

// Meta carries ambient, worker-process-level knobs that are not part of the
// core optimization semantics.
type Meta struct {
	StrictValidation *bool  `yaml:"strict_validation" json:"strict_validation"`
	EventsTopic      string `yaml:"events_topic" json:"events_topic"`
}

// BreederConfig is the full configuration supplied by the outer controller.
// It is immutable to the worker for the life of the job.
type BreederConfig struct {
	Breeder           BreederIdentity             `yaml:"breeder" json:"breeder"`
	CreationTS        time.Time                   `yaml:"creation_ts" json:"creation_ts"`
	Run               Run                         `yaml:"run" json:"run"`
	Objectives        []Objective                 `yaml:"objectives" json:"objectives"`
	Guardrails        []Guardrail                 `yaml:"guardrails" json:"guardrails"`
	Settings          Settings                    `yaml:"settings" json:"settings"`
	Cooperation       Cooperation                 `yaml:"cooperation" json:"cooperation"`
	Effectuation      Effectuation                `yaml:"effectuation" json:"effectuation"`
	RollbackStrategies map[string]RollbackStrategy `yaml:"rollback_strategies" json:"rollback_strategies"`
	Meta              Meta                        `yaml:"meta" json:"meta"`

	// RunID/TargetID identify which shard of the job this worker process
	// drives; supplied out-of-band by the (out of scope) outer controller.
	RunID    int `yaml:"run_id" json:"run_id"`
	TargetID int `yaml:"target_id" json:"target_id"`
}

// StrictValidation resolves the effective strict/permissive preflight mode:
// config.meta.strict_validation overrides the caller-supplied default.
func (c BreederConfig) StrictValidation(argStrict bool) bool {
	if c.Meta.StrictValidation != nil {
		return *c.Meta.StrictValidation
	}
	return argStrict
}

// Directions returns the ordered optimization directions of the configured
// objectives, used to create the study.
func (c BreederConfig) Directions() []Direction {
	out := make([]Direction, len(c.Objectives))
	for i, o := range c.Objectives {
		out[i] = o.Direction
	}
	return out
}

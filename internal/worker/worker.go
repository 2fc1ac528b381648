// Package worker implements one worker process's main loop: the repeated
// ask -> suggest -> effectuate -> reconnaissance -> guardrail-check -> tell
// -> cooperate sequence that advances a target's optimization study,
// generalized from the original controller's run() loop into a set of
// injected ports so the loop itself stays free of transport and storage
// concerns.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/godon-project/breeder-worker/internal/config"
	"github.com/godon-project/breeder-worker/internal/domain"
	"github.com/godon-project/breeder-worker/internal/guardrail"
	"github.com/godon-project/breeder-worker/internal/reconnaissance"
	"github.com/godon-project/breeder-worker/internal/rollback"
	"github.com/godon-project/breeder-worker/internal/sampler"
	"github.com/godon-project/breeder-worker/internal/suggest"
)

var tracer = otel.Tracer("github.com/godon-project/breeder-worker/internal/worker")

// Deps bundles every adapter the loop is driven through. Lock and Events
// are optional and may be nil.
type Deps struct {
	Study          domain.Study
	Registry       domain.StudyRegistry
	Effectuation   domain.EffectuationAdapter
	Reconnaissance *reconnaissance.Sampler
	Cooperation    domain.CooperationStrategy
	Metrics        domain.MetricsClient
	Lock           domain.RollbackLock
	Events         domain.EventPublisher
	Logger         *slog.Logger
}

// Status is a point-in-time snapshot of the worker's progress, read by the
// status server's /readyz handler.
type Status struct {
	State       string
	TrialNumber int
}

// Worker drives one target through its configured study until a
// completion criterion is met.
type Worker struct {
	cfg    domain.BreederConfig
	target domain.Target

	study        domain.Study
	registry     domain.StudyRegistry
	effectuation domain.EffectuationAdapter
	recon        *reconnaissance.Sampler
	cooperation  domain.CooperationStrategy
	metrics      domain.MetricsClient
	events       domain.EventPublisher
	rollbackMgr  *rollback.Manager
	rollbackCfg  domain.RollbackStrategy

	suggester *suggest.Suggester

	logger    *slog.Logger
	workerID  string
	breederID string

	deadline *time.Time

	mu          sync.Mutex
	state       string
	trialNumber int
	lastValues  []float64
}

// AssignSampler deterministically picks this worker's optimization algorithm
// from workerID, hashing over the first min(parallel, len(AllSamplerKinds))
// entries of domain.AllSamplerKinds so the available set never outgrows the
// worker pool it is partitioned across.
func AssignSampler(workerID string, parallel int) domain.SamplerKind {
	available := domain.AllSamplerKinds
	if n := min(parallel, len(available)); n > 0 {
		available = available[:n]
	}
	return sampler.AssignSamplerKind(workerID, available)
}

// StudyName derives the backing study's name from the breeder identity and
// the worker's assigned sampler, per domain.Study.Name's documented
// "breeder_id[_sampler]_study" convention. A single-worker run (parallel ==
// 1) disables sampler sharding: there is only one study, named plainly
// "{uuid}_study" with no sampler segment.
func StudyName(breederUUID string, kind domain.SamplerKind, parallel int) string {
	if parallel <= 1 {
		return fmt.Sprintf("%s_study", breederUUID)
	}
	return fmt.Sprintf("%s_%s_study", breederUUID, kind)
}

// New constructs a Worker for target, resolving its rollback strategy from
// cfg.RollbackStrategies (falling back to a never-triggers strategy when
// the configured name isn't found, so a typo in rollback_strategies
// disables rollback rather than panicking).
func New(cfg domain.BreederConfig, target domain.Target, workerID string, deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	strategy, ok := cfg.RollbackStrategies[target.Rollback.Strategy]
	if !ok {
		logger.Warn("rollback strategy not found, rollback disabled for target",
			slog.Int("target", target.ID), slog.String("strategy", target.Rollback.Strategy))
		strategy = domain.RollbackStrategy{
			ConsecutiveFailures: math.MaxInt32,
			TargetState:         domain.TargetStatePrevious,
			OnFailure:           domain.OnFailureContinue,
		}
	}

	rm := rollback.New(deps.Study, deps.Effectuation, deps.Metrics, deps.Lock, logger, target, target.ID, strategy)

	var deadline *time.Time
	if cfg.Run.CompletionCriteria.Timing.End != "" {
		if dl, err := parseDeadline(cfg); err == nil {
			deadline = &dl
		} else {
			logger.Warn("invalid completion_criteria.timing.end, time budget disabled", slog.Any("error", err))
		}
	}

	return &Worker{
		cfg: cfg, target: target,
		study: deps.Study, registry: deps.Registry, effectuation: deps.Effectuation,
		recon: deps.Reconnaissance, cooperation: deps.Cooperation, metrics: deps.Metrics, events: deps.Events,
		rollbackMgr: rm, rollbackCfg: strategy,
		suggester: suggest.New(),
		logger:     logger, workerID: workerID, breederID: cfg.Breeder.UUID,
		deadline: deadline,
		state:    "starting",
	}
}

func parseDeadline(cfg domain.BreederConfig) (time.Time, error) {
	secs, err := config.ParseTimingEnd(cfg.Run.CompletionCriteria.Timing.End)
	if err != nil {
		return time.Time{}, err
	}
	base := cfg.CreationTS
	if base.IsZero() {
		base = time.Now()
	}
	return base.Add(time.Duration(secs) * time.Second), nil
}

// Snapshot returns the worker's current progress, safe for concurrent
// access from the status server.
func (w *Worker) Snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{State: w.state, TrialNumber: w.trialNumber}
}

func (w *Worker) setState(s string) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run drives trials until a completion criterion fires or ctx is
// cancelled. It returns nil on a clean stop (completion reached, or a
// rollback after-action of "stop"), and a non-nil error only when a trial
// cannot be asked, suggested or told (a backing-store failure, or a
// settings entry the suggester cannot turn into a value).
func (w *Worker) Run(ctx context.Context) error {
	w.setState("running")
	trialsRun := 0

	for {
		if ctx.Err() != nil {
			w.setState("stopped")
			return nil
		}
		if !w.shouldContinue(trialsRun) {
			w.setState("completed")
			w.publish(ctx, trialsRun, "completed")
			return nil
		}

		stop, err := w.checkRollback(ctx)
		if err != nil {
			w.logger.Error("rollback check failed", slog.Any("error", err))
		}
		if stop {
			w.setState("stopped_after_rollback")
			return nil
		}

		if err := w.runTrial(ctx); err != nil {
			w.logger.Error("trial failed fatally", slog.Any("error", err))
			w.setState("failed")
			return err
		}

		trialsRun++
		w.mu.Lock()
		w.trialNumber = trialsRun
		w.mu.Unlock()

		if trialsRun%5 == 0 {
			w.publish(ctx, trialsRun, "running")
		}
	}
}

// checkRollback executes a pending rollback for this target if one is due,
// and applies the strategy's configured after-action. It returns stop=true
// when the worker should terminate rather than continue to the next trial.
func (w *Worker) checkRollback(ctx context.Context) (stop bool, err error) {
	triggered, err := w.rollbackMgr.MaybeExecuteRollback(ctx)
	if err != nil || !triggered {
		return false, err
	}

	switch w.rollbackCfg.After.Action {
	case domain.AfterStop:
		w.logger.Info("rollback after-action: stopping worker", slog.Int("target", w.target.ID))
		return true, nil
	case domain.AfterPause:
		w.logger.Info("rollback after-action: pausing",
			slog.Int("target", w.target.ID), slog.Duration("duration", w.rollbackCfg.After.Duration))
		w.setState("paused")
		select {
		case <-ctx.Done():
		case <-time.After(w.rollbackCfg.After.Duration):
		}
		return false, nil
	default: // continue
		return false, nil
	}
}

// runTrial runs exactly one ask/suggest/apply/measure/tell round.
func (w *Worker) runTrial(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "worker.trial")
	defer span.End()
	started := time.Now()

	handle, err := w.study.Ask(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ask failed")
		return fmt.Errorf("worker: ask: %w", err)
	}
	trialNumber := handle.TrialNumber()
	span.SetAttributes(attribute.Int("trial.number", trialNumber), attribute.Int("trial.target_id", w.target.ID))
	logger := w.logger.With(slog.Int("trial", trialNumber), slog.Int("target", w.target.ID))

	params, err := w.suggester.Suggest(handle, w.cfg.Settings)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("worker: suggest: %w", err)
	}
	if err := handle.ReportParams(ctx, params); err != nil {
		span.RecordError(err)
		return fmt.Errorf("worker: report params: %w", err)
	}

	if err := w.effectuation.Apply(ctx, w.target, params); err != nil {
		logger.Warn("effectuation apply failed, failing trial", slog.Any("error", err))
		w.metrics.TrialFailed(w.breederID, w.workerID, "effectuation_failed")
		if tellErr := w.study.Tell(ctx, trialNumber, nil, domain.TrialStateFail); tellErr != nil {
			logger.Error("failed to record failed trial", slog.Any("error", tellErr))
		}
		if rbErr := w.rollbackMgr.HandleGuardrailViolation(ctx); rbErr != nil {
			logger.Error("rollback bookkeeping failed after apply failure", slog.Any("error", rbErr))
		}
		return nil
	}

	values := make([]float64, len(w.cfg.Objectives))
	for i, obj := range w.cfg.Objectives {
		values[i] = w.recon.Measure(ctx, w.target, obj.Reconnaissance)
	}

	guardrailMetrics := make(map[string]float64, len(w.cfg.Guardrails))
	for _, g := range w.cfg.Guardrails {
		guardrailMetrics[g.Name] = w.recon.Measure(ctx, w.target, g.Reconnaissance)
	}

	violated, violations := guardrail.Check(logger, w.cfg.Guardrails, guardrailMetrics)
	if violated {
		for _, msg := range violations {
			logger.Error(msg)
		}
		for _, g := range w.cfg.Guardrails {
			if v, ok := guardrailMetrics[g.Name]; ok && v > g.HardLimit {
				w.metrics.GuardrailViolation(w.breederID, w.workerID, g.Name)
			}
		}
		w.metrics.TrialFailed(w.breederID, w.workerID, "guardrail_violated")
		if err := w.study.Tell(ctx, trialNumber, nil, domain.TrialStateFail); err != nil {
			logger.Error("failed to record failed trial", slog.Any("error", err))
		}
		if err := w.rollbackMgr.HandleGuardrailViolation(ctx); err != nil {
			logger.Error("rollback bookkeeping failed after guardrail violation", slog.Any("error", err))
		}
		return nil
	}

	if err := w.study.Tell(ctx, trialNumber, values, domain.TrialStateComplete); err != nil {
		span.RecordError(err)
		return fmt.Errorf("worker: tell: %w", err)
	}
	if err := w.rollbackMgr.HandleSuccessfulTrial(ctx, params); err != nil {
		logger.Error("rollback bookkeeping failed after successful trial", slog.Any("error", err))
	}

	w.metrics.TrialCompleted(w.breederID, w.workerID, time.Since(started).Seconds())
	for i, obj := range w.cfg.Objectives {
		w.metrics.ObjectiveValue(w.breederID, obj.Name, values[i])
	}

	w.mu.Lock()
	w.lastValues = values
	w.mu.Unlock()

	w.maybeCooperate(ctx, trialNumber, params, values, logger)

	return nil
}

func (w *Worker) maybeCooperate(ctx context.Context, trialNumber int, params domain.ParamAssignment, values []float64, logger *slog.Logger) {
	if w.cooperation == nil || !w.cfg.Cooperation.Active {
		return
	}

	all, err := w.study.Trials(ctx)
	if err != nil {
		logger.Warn("cooperation: failed to load trial history, skipping", slog.Any("error", err))
		return
	}
	completed := make([]domain.Trial, 0, len(all))
	for _, t := range all {
		if t.State == domain.TrialStateComplete {
			completed = append(completed, t)
		}
	}

	trial := domain.Trial{Number: trialNumber, Params: params, Values: values, State: domain.TrialStateComplete}
	if !w.cooperation.ShouldShare(w.cfg.Cooperation, trial, completed) {
		return
	}
	if err := w.cooperation.Share(ctx, w.registry, w.study.Name(), trial, w.cfg.Run.Parallel > 1); err != nil {
		logger.Warn("cooperation: share failed", slog.Any("error", err))
	}
}

// shouldContinue ORs together the configured completion criteria: a hard
// maximum on trial count always wins; below the configured minimum the
// worker always continues regardless of time or quality; above it, a
// passed deadline or an achieved quality threshold stop the run early.
func (w *Worker) shouldContinue(trialsRun int) bool {
	crit := w.cfg.Run.CompletionCriteria

	if crit.Iterations.Max > 0 && trialsRun >= crit.Iterations.Max {
		w.logger.Info("max iterations reached, stopping", slog.Int("trials", trialsRun))
		return false
	}
	if trialsRun < crit.Iterations.Min {
		return true
	}
	if w.deadline != nil && time.Now().After(*w.deadline) {
		w.logger.Info("time budget exhausted, stopping")
		return false
	}
	if crit.QualityAchieved && w.qualityAchieved() {
		w.logger.Info("quality threshold achieved, stopping")
		return false
	}
	return true
}

func (w *Worker) qualityAchieved() bool {
	w.mu.Lock()
	values := w.lastValues
	w.mu.Unlock()

	if len(values) != len(w.cfg.Objectives) {
		return false
	}
	for i, obj := range w.cfg.Objectives {
		if obj.QualityThreshold == nil {
			continue
		}
		switch obj.Direction {
		case domain.DirectionMinimize:
			if values[i] > *obj.QualityThreshold {
				return false
			}
		case domain.DirectionMaximize:
			if values[i] < *obj.QualityThreshold {
				return false
			}
		}
	}
	return true
}

func (w *Worker) publish(ctx context.Context, trialsRun int, state string) {
	if w.events == nil {
		return
	}
	topic := w.cfg.Meta.EventsTopic
	if topic == "" {
		return
	}

	var best []float64
	if trials, err := w.study.BestTrials(ctx); err == nil && len(trials) > 0 {
		best = trials[0].Values
	}

	event := domain.ProgressEvent{
		BreederID:     w.breederID,
		WorkerID:      w.workerID,
		TrialNumber:   trialsRun,
		State:         state,
		BestValues:    best,
		EmittedAtUnix: time.Now().Unix(),
	}
	if err := w.events.Publish(ctx, topic, event); err != nil {
		w.logger.Warn("progress publish failed", slog.Any("error", err))
	}
}

// Package memory implements domain.Study and domain.StudyRegistry entirely
// in process memory, used by tests that exercise the worker loop, rollback,
// and cooperation packages without a real Postgres-backed store.
package memory

import (
	"fmt"
	"sync"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// Registry is a shared in-memory set of studies, standing in for the
// Postgres-backed store's cross-study visibility.
type Registry struct {
	mu      sync.Mutex
	studies map[string]*Study
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{studies: map[string]*Study{}}
}

// CreateStudy creates (or returns the existing) study named name with the
// given directions.
func (r *Registry) CreateStudy(name string, directions []domain.Direction) *Study {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.studies[name]; ok {
		return s
	}
	s := &Study{name: name, directions: directions, userAttrs: map[string]string{}}
	r.studies[name] = s
	return s
}

// AllStudyNames implements domain.StudyRegistry.
func (r *Registry) AllStudyNames(ctx domain.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.studies))
	for name := range r.studies {
		names = append(names, name)
	}
	return names, nil
}

// OpenStudy implements domain.StudyRegistry.
func (r *Registry) OpenStudy(ctx domain.Context, name string) (domain.Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.studies[name]
	if !ok {
		return nil, fmt.Errorf("%w: study %q", domain.ErrNotFound, name)
	}
	return s, nil
}

// Study is an in-memory domain.Study implementation.
type Study struct {
	mu         sync.Mutex
	name       string
	directions []domain.Direction
	trials     []domain.Trial
	userAttrs  map[string]string
}

func (s *Study) Name() string                   { return s.name }
func (s *Study) Directions() []domain.Direction { return s.directions }

// Ask implements domain.Study.
func (s *Study) Ask(ctx domain.Context) (domain.AskHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	number := len(s.trials)
	s.trials = append(s.trials, domain.Trial{Number: number, State: domain.TrialStateRunning, Params: domain.ParamAssignment{}})
	return &handle{study: s, number: number}, nil
}

// Tell implements domain.Study.
func (s *Study) Tell(ctx domain.Context, trialNumber int, values []float64, state domain.TrialState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trialNumber < 0 || trialNumber >= len(s.trials) {
		return fmt.Errorf("%w: trial %d", domain.ErrNotFound, trialNumber)
	}
	s.trials[trialNumber].Values = values
	s.trials[trialNumber].State = state
	return nil
}

// AddTrial implements domain.Study.
func (s *Study) AddTrial(ctx domain.Context, trial domain.FrozenTrial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trials = append(s.trials, domain.Trial{
		Number: len(s.trials), Params: trial.Params, Values: trial.Values, State: trial.State,
	})
	return nil
}

// Trials implements domain.Study.
func (s *Study) Trials(ctx domain.Context) ([]domain.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Trial, len(s.trials))
	copy(out, s.trials)
	return out, nil
}

// BestTrials implements domain.Study. It returns the Pareto-optimal subset
// of completed trials across all objective directions.
func (s *Study) BestTrials(ctx domain.Context) ([]domain.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed []domain.Trial
	for _, t := range s.trials {
		if t.State == domain.TrialStateComplete && len(t.Values) > 0 {
			completed = append(completed, t)
		}
	}

	var best []domain.Trial
	for _, candidate := range completed {
		dominated := false
		for _, other := range completed {
			if dominates(other, candidate, s.directions) {
				dominated = true
				break
			}
		}
		if !dominated {
			best = append(best, candidate)
		}
	}
	return best, nil
}

func dominates(a, b domain.Trial, directions []domain.Direction) bool {
	atLeastAsGoodInAll := true
	strictlyBetterInOne := false
	for i := range directions {
		if i >= len(a.Values) || i >= len(b.Values) {
			continue
		}
		av, bv := a.Values[i], b.Values[i]
		better := av < bv
		worse := av > bv
		if directions[i] == domain.DirectionMaximize {
			better, worse = worse, better
		}
		if worse {
			atLeastAsGoodInAll = false
		}
		if better {
			strictlyBetterInOne = true
		}
	}
	return atLeastAsGoodInAll && strictlyBetterInOne
}

// SetUserAttr implements domain.Study with last-write-wins semantics.
func (s *Study) SetUserAttr(ctx domain.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userAttrs[key] = value
	return nil
}

// GetUserAttrs implements domain.Study.
func (s *Study) GetUserAttrs(ctx domain.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.userAttrs))
	for k, v := range s.userAttrs {
		out[k] = v
	}
	return out, nil
}

// handle is the in-memory domain.AskHandle: it returns deterministic
// midpoint-of-range values rather than sampling, since memory.Study backs
// unit tests, not real optimization.
type handle struct {
	study  *Study
	number int
}

func (h *handle) TrialNumber() int { return h.number }

func (h *handle) SuggestFloat(name string, low, high, step float64) (float64, error) {
	return (low + high) / 2, nil
}

func (h *handle) SuggestInt(name string, low, high, step int64) (int64, error) {
	return (low + high) / 2, nil
}

func (h *handle) SuggestCategorical(name string, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", fmt.Errorf("%w: %s has no choices", domain.ErrInvalidArgument, name)
	}
	return choices[0], nil
}

func (h *handle) ReportParams(ctx domain.Context, params domain.ParamAssignment) error {
	h.study.mu.Lock()
	defer h.study.mu.Unlock()
	h.study.trials[h.number].Params = params
	return nil
}

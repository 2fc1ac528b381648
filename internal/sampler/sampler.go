// Package sampler assigns a worker to one of the available optimization
// algorithms and implements each one's per-parameter suggestion logic. No
// Go port of Optuna exists anywhere in the example pack, so each sampler
// here is an original reimplementation of the algorithm's essential idea
// (density-ratio estimation for TPE, population crossover for NSGA-II/III,
// a low-discrepancy sequence for QMC) rather than a literal translation.
package sampler

import (
	"crypto/md5" //nolint:gosec // used for deterministic bucketing, not security
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"sort"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// AssignSamplerKind deterministically assigns one of available to workerID,
// matching the original's `int(md5(worker_id).hexdigest(), 16) % len(available)`.
func AssignSamplerKind(workerID string, available []domain.SamplerKind) domain.SamplerKind {
	if len(available) == 0 {
		return domain.SamplerRandom
	}
	sum := md5.Sum([]byte(workerID)) //nolint:gosec
	digest := new(big.Int).SetBytes(sum[:])
	idx := new(big.Int).Mod(digest, big.NewInt(int64(len(available))))
	return available[idx.Int64()]
}

// Sampler suggests a value for one parameter at a time given the study's
// trial history so far. Implementations must be safe to reuse across
// parameters within a single trial.
type Sampler interface {
	Kind() domain.SamplerKind
	SuggestFloat(history []domain.Trial, directions []domain.Direction, name string, low, high, step float64) float64
	SuggestInt(history []domain.Trial, directions []domain.Direction, name string, low, high, step int64) int64
	SuggestCategorical(history []domain.Trial, directions []domain.Direction, name string, choices []string) string
}

// New constructs a Sampler for kind, seeded deterministically when cfg.Seed
// is set (used by tests), or from a process-global source otherwise.
func New(cfg domain.SamplerConfig) Sampler {
	var rng *rand.Rand
	if cfg.Seed != nil {
		rng = rand.New(rand.NewSource(*cfg.Seed)) //nolint:gosec
	} else {
		rng = rand.New(rand.NewSource(rand.Int63())) //nolint:gosec
	}

	switch cfg.Kind {
	case domain.SamplerRandom:
		return &randomSampler{rng: rng}
	case domain.SamplerQMC:
		return &qmcSampler{rng: rng}
	case domain.SamplerTPE:
		return &tpeSampler{rng: rng, gamma: 0.25}
	case domain.SamplerNSGA2, domain.SamplerNSGA3:
		profile := domain.DefaultNSGA2Profiles[cfg.Crossover]
		if profile.PopulationSize == 0 {
			profile = domain.DefaultNSGA2Profiles[domain.CrossoverSBX]
		}
		if cfg.PopulationSize > 0 {
			profile.PopulationSize = cfg.PopulationSize
		}
		if profile.PopulationSize < profile.MinPopulation {
			profile.PopulationSize = profile.MinPopulation
		}
		return &nsgaSampler{rng: rng, kind: cfg.Kind, profile: profile}
	default:
		return &randomSampler{rng: rng}
	}
}

func clampFloat(v, low, high, step float64) float64 {
	if step > 0 {
		steps := math.Round((v - low) / step)
		v = low + steps*step
	}
	if v < low {
		v = low
	}
	if v > high {
		v = high
	}
	return v
}

func clampInt(v, low, high, step int64) int64 {
	if step > 1 {
		steps := (v - low) / step
		v = low + steps*step
	}
	if v < low {
		v = low
	}
	if v > high {
		v = high
	}
	return v
}

// --- random ---

type randomSampler struct{ rng *rand.Rand }

func (s *randomSampler) Kind() domain.SamplerKind { return domain.SamplerRandom }

func (s *randomSampler) SuggestFloat(_ []domain.Trial, _ []domain.Direction, _ string, low, high, step float64) float64 {
	return clampFloat(low+s.rng.Float64()*(high-low), low, high, step)
}

func (s *randomSampler) SuggestInt(_ []domain.Trial, _ []domain.Direction, _ string, low, high, step int64) int64 {
	if high <= low {
		return low
	}
	return clampInt(low+s.rng.Int63n(high-low+1), low, high, step)
}

func (s *randomSampler) SuggestCategorical(_ []domain.Trial, _ []domain.Direction, _ string, choices []string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[s.rng.Intn(len(choices))]
}

// --- quasi-Monte Carlo (Halton sequence) ---

// qmcSampler draws each named dimension from an independent Halton
// sequence, using a distinct prime base per dimension name so that
// different parameters don't share the exact same sequence.
type qmcSampler struct {
	rng     *rand.Rand
	indices map[string]int
}

var haltonPrimes = []int{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47}

func (s *qmcSampler) Kind() domain.SamplerKind { return domain.SamplerQMC }

func (s *qmcSampler) baseFor(name string) int {
	h := fnv32(name)
	return haltonPrimes[int(h)%len(haltonPrimes)]
}

func (s *qmcSampler) next(name string) float64 {
	if s.indices == nil {
		s.indices = make(map[string]int)
	}
	s.indices[name]++
	return halton(s.indices[name], s.baseFor(name))
}

func halton(index, base int) float64 {
	f := 1.0
	r := 0.0
	i := index
	for i > 0 {
		f /= float64(base)
		r += f * float64(i%base)
		i /= base
	}
	return r
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (s *qmcSampler) SuggestFloat(_ []domain.Trial, _ []domain.Direction, name string, low, high, step float64) float64 {
	u := s.next(name)
	return clampFloat(low+u*(high-low), low, high, step)
}

func (s *qmcSampler) SuggestInt(_ []domain.Trial, _ []domain.Direction, name string, low, high, step int64) int64 {
	if high <= low {
		return low
	}
	u := s.next(name)
	v := low + int64(u*float64(high-low+1))
	return clampInt(v, low, high, step)
}

func (s *qmcSampler) SuggestCategorical(_ []domain.Trial, _ []domain.Direction, name string, choices []string) string {
	if len(choices) == 0 {
		return ""
	}
	u := s.next(name)
	idx := int(u * float64(len(choices)))
	if idx >= len(choices) {
		idx = len(choices) - 1
	}
	return choices[idx]
}

// --- TPE (tree-structured Parzen estimator, simplified single-objective form) ---

// tpeSampler splits completed trials into a "good" group (the best gamma
// fraction by the first objective, oriented by its direction) and a "bad"
// group, then favors values seen in the good group via Gaussian jitter
// around an observed good value rather than the uniform prior.
type tpeSampler struct {
	rng   *rand.Rand
	gamma float64
}

func (s *tpeSampler) Kind() domain.SamplerKind { return domain.SamplerTPE }

func completedOf(history []domain.Trial) []domain.Trial {
	out := make([]domain.Trial, 0, len(history))
	for _, t := range history {
		if t.State == domain.TrialStateComplete && len(t.Values) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// goodGroup returns the best gamma-fraction of completed trials by their
// first objective value, oriented by directions[0] (minimize keeps the
// lowest values, maximize keeps the highest).
func goodGroup(history []domain.Trial, directions []domain.Direction, gamma float64) []domain.Trial {
	completed := completedOf(history)
	if len(completed) < 4 {
		return nil
	}
	maximize := len(directions) > 0 && directions[0] == domain.DirectionMaximize
	sort.Slice(completed, func(i, j int) bool {
		if maximize {
			return completed[i].Values[0] > completed[j].Values[0]
		}
		return completed[i].Values[0] < completed[j].Values[0]
	})
	n := int(math.Ceil(float64(len(completed)) * gamma))
	if n < 1 {
		n = 1
	}
	if n > len(completed) {
		n = len(completed)
	}
	return completed[:n]
}

func (s *tpeSampler) SuggestFloat(history []domain.Trial, directions []domain.Direction, name string, low, high, step float64) float64 {
	good := goodGroup(history, directions, s.gamma)
	if len(good) == 0 {
		return clampFloat(low+s.rng.Float64()*(high-low), low, high, step)
	}
	pick := good[s.rng.Intn(len(good))]
	pv, ok := pick.Params[name]
	if !ok || pv.Kind != domain.KindFloat {
		return clampFloat(low+s.rng.Float64()*(high-low), low, high, step)
	}
	bandwidth := (high - low) * 0.1
	v := pv.Float + s.rng.NormFloat64()*bandwidth
	return clampFloat(v, low, high, step)
}

func (s *tpeSampler) SuggestInt(history []domain.Trial, directions []domain.Direction, name string, low, high, step int64) int64 {
	good := goodGroup(history, directions, s.gamma)
	if len(good) == 0 {
		if high <= low {
			return low
		}
		return clampInt(low+s.rng.Int63n(high-low+1), low, high, step)
	}
	pick := good[s.rng.Intn(len(good))]
	pv, ok := pick.Params[name]
	if !ok || pv.Kind != domain.KindInt {
		if high <= low {
			return low
		}
		return clampInt(low+s.rng.Int63n(high-low+1), low, high, step)
	}
	bandwidth := float64(high-low) * 0.1
	v := pv.Int + int64(s.rng.NormFloat64()*bandwidth)
	return clampInt(v, low, high, step)
}

func (s *tpeSampler) SuggestCategorical(history []domain.Trial, directions []domain.Direction, name string, choices []string) string {
	if len(choices) == 0 {
		return ""
	}
	good := goodGroup(history, directions, s.gamma)
	counts := make(map[string]int)
	for _, t := range good {
		if pv, ok := t.Params[name]; ok && pv.Kind == domain.KindCategorical {
			counts[pv.Str]++
		}
	}
	total := 0
	for _, c := range choices {
		total += counts[c] + 1 // Laplace-smoothed so every choice stays reachable
	}
	r := s.rng.Intn(total)
	for _, c := range choices {
		w := counts[c] + 1
		if r < w {
			return c
		}
		r -= w
	}
	return choices[len(choices)-1]
}

// --- NSGA-II / NSGA-III (population crossover) ---

// nsgaSampler draws two parents from the current Pareto-best slice of
// history and recombines the named parameter via the configured crossover
// operator. NSGA-III differs from NSGA-II only in its reference-point based
// selection pressure across many objectives; with a single crossover step
// per parameter that distinction doesn't change this function's math, so
// both kinds share the implementation (kept distinct for study naming and
// potential future divergence).
type nsgaSampler struct {
	rng     *rand.Rand
	kind    domain.SamplerKind
	profile domain.NSGA2Profile
}

func (s *nsgaSampler) Kind() domain.SamplerKind { return s.kind }

func paretoFront(history []domain.Trial, directions []domain.Direction) []domain.Trial {
	completed := completedOf(history)
	var front []domain.Trial
	for i, a := range completed {
		dominated := false
		for j, b := range completed {
			if i == j {
				continue
			}
			if dominatesAll(b, a, directions) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, a)
		}
	}
	return front
}

func dominatesAll(a, b domain.Trial, directions []domain.Direction) bool {
	betterOrEqual, strictlyBetter := true, false
	for i := range a.Values {
		if i >= len(b.Values) {
			break
		}
		maximize := i < len(directions) && directions[i] == domain.DirectionMaximize
		av, bv := a.Values[i], b.Values[i]
		if maximize {
			if av < bv {
				betterOrEqual = false
				break
			}
			if av > bv {
				strictlyBetter = true
			}
		} else {
			if av > bv {
				betterOrEqual = false
				break
			}
			if av < bv {
				strictlyBetter = true
			}
		}
	}
	return betterOrEqual && strictlyBetter
}

func (s *nsgaSampler) parents(history []domain.Trial, directions []domain.Direction) (domain.Trial, domain.Trial, bool) {
	pool := paretoFront(history, directions)
	if len(pool) < s.profile.MinPopulation {
		pool = completedOf(history)
	}
	if len(pool) < 2 {
		return domain.Trial{}, domain.Trial{}, false
	}
	a := pool[s.rng.Intn(len(pool))]
	b := pool[s.rng.Intn(len(pool))]
	return a, b, true
}

func (s *nsgaSampler) crossoverFloat(a, b float64) float64 {
	switch s.profile.Crossover {
	case domain.CrossoverSBX:
		return sbxCrossover(s.rng, a, b, 2.0)
	case domain.CrossoverBLXAlpha:
		return blxAlphaCrossover(s.rng, a, b, 0.5)
	case domain.CrossoverUNDX, domain.CrossoverSPX, domain.CrossoverVSBX:
		// Simplex-family operators need >=3 parents; with two-parent
		// parent selection here, fall back to a BLX-alpha blend which
		// approximates their same "search around the segment" intent.
		return blxAlphaCrossover(s.rng, a, b, 0.3)
	default:
		return (a + b) / 2
	}
}

func sbxCrossover(rng *rand.Rand, a, b, eta float64) float64 {
	u := rng.Float64()
	var beta float64
	if u <= 0.5 {
		beta = math.Pow(2*u, 1/(eta+1))
	} else {
		beta = math.Pow(1/(2*(1-u)), 1/(eta+1))
	}
	return 0.5 * ((1+beta)*a + (1-beta)*b)
}

func blxAlphaCrossover(rng *rand.Rand, a, b, alpha float64) float64 {
	low, high := a, b
	if low > high {
		low, high = high, low
	}
	spread := high - low
	lo := low - alpha*spread
	hi := high + alpha*spread
	return lo + rng.Float64()*(hi-lo)
}

func (s *nsgaSampler) SuggestFloat(history []domain.Trial, directions []domain.Direction, name string, low, high, step float64) float64 {
	a, b, ok := s.parents(history, directions)
	if !ok {
		return clampFloat(low+s.rng.Float64()*(high-low), low, high, step)
	}
	pa, oka := a.Params[name]
	pb, okb := b.Params[name]
	if !oka || !okb || pa.Kind != domain.KindFloat || pb.Kind != domain.KindFloat {
		return clampFloat(low+s.rng.Float64()*(high-low), low, high, step)
	}
	return clampFloat(s.crossoverFloat(pa.Float, pb.Float), low, high, step)
}

func (s *nsgaSampler) SuggestInt(history []domain.Trial, directions []domain.Direction, name string, low, high, step int64) int64 {
	a, b, ok := s.parents(history, directions)
	if !ok {
		if high <= low {
			return low
		}
		return clampInt(low+s.rng.Int63n(high-low+1), low, high, step)
	}
	pa, oka := a.Params[name]
	pb, okb := b.Params[name]
	if !oka || !okb || pa.Kind != domain.KindInt || pb.Kind != domain.KindInt {
		if high <= low {
			return low
		}
		return clampInt(low+s.rng.Int63n(high-low+1), low, high, step)
	}
	v := s.crossoverFloat(float64(pa.Int), float64(pb.Int))
	return clampInt(int64(math.Round(v)), low, high, step)
}

func (s *nsgaSampler) SuggestCategorical(history []domain.Trial, directions []domain.Direction, name string, choices []string) string {
	if len(choices) == 0 {
		return ""
	}
	a, b, ok := s.parents(history, directions)
	if !ok {
		return choices[s.rng.Intn(len(choices))]
	}
	pa, oka := a.Params[name]
	pb, okb := b.Params[name]
	if !oka || !okb || pa.Kind != domain.KindCategorical || pb.Kind != domain.KindCategorical {
		return choices[s.rng.Intn(len(choices))]
	}
	if s.rng.Float64() < 0.5 {
		return pa.Str
	}
	return pb.Str
}

// ChooseCrossover mirrors the original's per-study random.choice over the
// NSGA-II crossover-name pool, used once when a new study is created.
func ChooseCrossover(rng *rand.Rand) domain.CrossoverKind {
	kinds := []domain.CrossoverKind{
		domain.CrossoverUNDX, domain.CrossoverSPX, domain.CrossoverBLXAlpha,
		domain.CrossoverSBX, domain.CrossoverVSBX,
	}
	return kinds[rng.Intn(len(kinds))]
}

// Describe renders a short human-readable label for logging, mirroring the
// original's "Created NSGAII sampler with crossover=..." log line.
func Describe(kind domain.SamplerKind, profile domain.NSGA2Profile) string {
	if kind == domain.SamplerNSGA2 || kind == domain.SamplerNSGA3 {
		return fmt.Sprintf("%s(crossover=%s, population=%d)", kind, profile.Crossover, profile.PopulationSize)
	}
	return string(kind)
}

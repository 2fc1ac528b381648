package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/godon-project/breeder-worker/internal/domain"
)

func TestAssignSamplerKind_Deterministic(t *testing.T) {
	t.Parallel()
	k1 := AssignSamplerKind("linux_performance_worker_abc-123", domain.AllSamplerKinds)
	k2 := AssignSamplerKind("linux_performance_worker_abc-123", domain.AllSamplerKinds)
	assert.Equal(t, k1, k2)
}

func TestAssignSamplerKind_SpreadsAcrossWorkers(t *testing.T) {
	t.Parallel()
	seen := map[domain.SamplerKind]bool{}
	for i := 0; i < 50; i++ {
		id := "worker_" + string(rune('a'+i))
		seen[AssignSamplerKind(id, domain.AllSamplerKinds)] = true
	}
	assert.Greater(t, len(seen), 1, "50 distinct worker ids should not all land on one sampler")
}

func TestRandomSampler_RespectsBounds(t *testing.T) {
	t.Parallel()
	seed := int64(42)
	s := New(domain.SamplerConfig{Kind: domain.SamplerRandom, Seed: &seed})
	for i := 0; i < 100; i++ {
		v := s.SuggestFloat(nil, nil, "x", 10, 20, 0)
		assert.GreaterOrEqual(t, v, 10.0)
		assert.LessOrEqual(t, v, 20.0)
	}
}

func TestRandomSampler_StepSnapsToGrid(t *testing.T) {
	t.Parallel()
	seed := int64(1)
	s := New(domain.SamplerConfig{Kind: domain.SamplerRandom, Seed: &seed})
	v := s.SuggestInt(nil, nil, "y", 0, 100, 10)
	assert.Equal(t, int64(0), v%10)
}

func TestQMCSampler_FillsRangeOverManyDraws(t *testing.T) {
	t.Parallel()
	seed := int64(7)
	s := New(domain.SamplerConfig{Kind: domain.SamplerQMC, Seed: &seed})
	var minV, maxV = 1.0, 0.0
	for i := 0; i < 20; i++ {
		v := s.SuggestFloat(nil, nil, "p", 0, 1, 0)
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	assert.Less(t, minV, 0.2)
	assert.Greater(t, maxV, 0.8)
}

func TestTPESampler_FallsBackToUniformWithoutHistory(t *testing.T) {
	t.Parallel()
	seed := int64(3)
	s := New(domain.SamplerConfig{Kind: domain.SamplerTPE, Seed: &seed})
	v := s.SuggestFloat(nil, []domain.Direction{domain.DirectionMinimize}, "x", 0, 10, 0)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 10.0)
}

func TestTPESampler_BiasesTowardGoodGroup(t *testing.T) {
	t.Parallel()
	seed := int64(9)
	s := New(domain.SamplerConfig{Kind: domain.SamplerTPE, Seed: &seed})

	history := make([]domain.Trial, 0, 20)
	for i := 0; i < 20; i++ {
		val := float64(i)
		history = append(history, domain.Trial{
			State:  domain.TrialStateComplete,
			Values: []float64{val},
			Params: domain.ParamAssignment{"x": domain.NewFloatValue(val)},
		})
	}

	var sum float64
	const n = 200
	for i := 0; i < n; i++ {
		sum += s.SuggestFloat(history, []domain.Direction{domain.DirectionMinimize}, "x", 0, 20, 0)
	}
	mean := sum / n
	assert.Less(t, mean, 10.0, "TPE should bias toward the low (good) values when minimizing")
}

func TestNSGASampler_CrossesOverParentValues(t *testing.T) {
	t.Parallel()
	seed := int64(5)
	s := New(domain.SamplerConfig{Kind: domain.SamplerNSGA2, Crossover: domain.CrossoverSBX, PopulationSize: 4, Seed: &seed})

	history := []domain.Trial{
		{State: domain.TrialStateComplete, Values: []float64{1}, Params: domain.ParamAssignment{"x": domain.NewFloatValue(2)}},
		{State: domain.TrialStateComplete, Values: []float64{2}, Params: domain.ParamAssignment{"x": domain.NewFloatValue(8)}},
		{State: domain.TrialStateComplete, Values: []float64{3}, Params: domain.ParamAssignment{"x": domain.NewFloatValue(4)}},
	}

	v := s.SuggestFloat(history, []domain.Direction{domain.DirectionMinimize}, "x", 0, 10, 0)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 10.0)
}

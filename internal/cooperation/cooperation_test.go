package cooperation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godon-project/breeder-worker/internal/adapter/study/memory"
	"github.com/godon-project/breeder-worker/internal/domain"
)

func completedWithValues(values ...float64) []domain.Trial {
	out := make([]domain.Trial, len(values))
	for i, v := range values {
		out[i] = domain.Trial{Number: i, Values: []float64{v}, State: domain.TrialStateComplete}
	}
	return out
}

// TestShouldShare_Best mirrors the S4 scenario: 12 completed trials with
// first-objective values 1..12 (minimize), top_percentile=0.2.
func TestShouldShare_Best(t *testing.T) {
	t.Parallel()
	s := New(nil, rand.New(rand.NewSource(1)))
	cfg := domain.Cooperation{
		ShareStrategy:         domain.ShareBest,
		TopPercentile:         0.2,
		MinTrialsForFiltering: 12,
	}
	completed := completedWithValues(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	low := domain.Trial{Values: []float64{2}}
	assert.False(t, s.ShouldShare(cfg, low, completed), "value 2 should not meet the top-20%% threshold")

	high := domain.Trial{Values: []float64{12}}
	assert.True(t, s.ShouldShare(cfg, high, completed), "value 12 is the maximum and should be shared")
}

func TestShouldShare_InsufficientTrialsAlwaysShares(t *testing.T) {
	t.Parallel()
	s := New(nil, rand.New(rand.NewSource(1)))
	cfg := domain.Cooperation{ShareStrategy: domain.ShareBest, MinTrialsForFiltering: 10}
	completed := completedWithValues(1, 2, 3)

	assert.True(t, s.ShouldShare(cfg, domain.Trial{Values: []float64{1}}, completed))
}

func TestBreederPrefixOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc123", breederPrefixOf("abc123_tpe_study"))
	assert.Equal(t, "abc123", breederPrefixOf("abc123"))
}

// TestShare_SkipsSamePrefixOnlyWhenNotSharingWithinBreeder mirrors a
// parallel>1 run: sibling sampler studies of this breeder ("abc_tpe_study",
// "abc_nsga2_study") share the "abc" prefix with the originating study
// ("abc_random_study") and must still receive the trial when
// shareWithinBreeder is true, but be skipped when it is false.
func TestShare_SkipsSamePrefixOnlyWhenNotSharingWithinBreeder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil, rand.New(rand.NewSource(1)))
	directions := []domain.Direction{domain.DirectionMaximize}

	reg := memory.NewRegistry()
	self := reg.CreateStudy("abc_random_study", directions)
	sibling := reg.CreateStudy("abc_tpe_study", directions)
	other := reg.CreateStudy("xyz_study", directions)

	trial := domain.Trial{Number: 1, Values: []float64{42}, State: domain.TrialStateComplete}

	require.NoError(t, s.Share(ctx, reg, self.Name(), trial, false))
	siblingTrials, err := sibling.Trials(ctx)
	require.NoError(t, err)
	assert.Empty(t, siblingTrials, "sibling sharing the breeder prefix must be skipped when shareWithinBreeder=false")
	otherTrials, err := other.Trials(ctx)
	require.NoError(t, err)
	assert.Len(t, otherTrials, 1, "a peer outside the breeder prefix must still receive the trial")

	require.NoError(t, s.Share(ctx, reg, self.Name(), trial, true))
	siblingTrials, err = sibling.Trials(ctx)
	require.NoError(t, err)
	assert.Len(t, siblingTrials, 1, "sibling sampler studies of the same breeder must receive the trial when shareWithinBreeder=true")
}

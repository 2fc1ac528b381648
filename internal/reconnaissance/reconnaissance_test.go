package reconnaissance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/godon-project/breeder-worker/internal/domain"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2.0, Aggregate([]float64{1, 2, 3}, domain.AggregationMedian))
	assert.InDelta(t, 2.0, Aggregate([]float64{1, 2, 3}, domain.AggregationMean), 1e-9)
	assert.Equal(t, 1.0, Aggregate([]float64{1, 2, 3}, domain.AggregationMin))
	assert.Equal(t, 3.0, Aggregate([]float64{1, 2, 3}, domain.AggregationMax))
}

func TestAggregate_NoValidSamplesReturnsInf(t *testing.T) {
	t.Parallel()
	result := Aggregate([]float64{math.NaN(), math.Inf(1)}, domain.AggregationMedian)
	assert.True(t, math.IsInf(result, 1))
}

func TestAggregate_UnknownMethodDefaultsToMedian(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 2.0, Aggregate([]float64{1, 2, 3}, domain.Aggregation("bogus")))
}

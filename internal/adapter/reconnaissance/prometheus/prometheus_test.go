package prometheus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractScalarValue(t *testing.T) {
	t.Parallel()

	v, err := extractScalarValue([]interface{}{1234.5, "0.873"})
	require.NoError(t, err)
	assert.InDelta(t, 0.873, v, 1e-9)

	v, err = extractScalarValue([]interface{}{1234.5, "NaN"})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))

	_, err = extractScalarValue([]interface{}{1234.5})
	assert.Error(t, err)

	_, err = extractScalarValue([]interface{}{1234.5, "not-a-number"})
	assert.Error(t, err)
}

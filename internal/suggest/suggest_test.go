package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/godon-project/breeder-worker/internal/domain"
)

type mockHandle struct {
	mock.Mock
}

func (m *mockHandle) TrialNumber() int { return 0 }

func (m *mockHandle) SuggestFloat(name string, low, high, step float64) (float64, error) {
	args := m.Called(name, low, high, step)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockHandle) SuggestInt(name string, low, high, step int64) (int64, error) {
	args := m.Called(name, low, high, step)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockHandle) SuggestCategorical(name string, choices []string) (string, error) {
	args := m.Called(name, choices)
	return args.String(0), args.Error(1)
}

func (m *mockHandle) ReportParams(ctx domain.Context, params domain.ParamAssignment) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func floatPtr(v float64) *float64 { return &v }

func TestSuggestSingle_Categorical(t *testing.T) {
	t.Parallel()
	h := &mockHandle{}
	h.On("SuggestCategorical", "cpu_governor", []string{"performance", "powersave"}).Return("performance", nil)

	pc := domain.ParamConfig{Constraints: []domain.Constraint{{Values: []string{"performance", "powersave"}}}}
	v, err := suggestSingle(h, "cpu_governor", pc)
	require.NoError(t, err)
	assert.Equal(t, domain.KindCategorical, v.Kind)
	assert.Equal(t, "performance", v.Str)
	h.AssertExpectations(t)
}

func TestSuggestSingle_Int(t *testing.T) {
	t.Parallel()
	h := &mockHandle{}
	h.On("SuggestInt", "net.core.netdev_budget", int64(100), int64(1000), int64(50)).Return(int64(300), nil)

	pc := domain.ParamConfig{Constraints: []domain.Constraint{{
		Lower: floatPtr(100), Upper: floatPtr(1000), Step: floatPtr(50),
		LowerIsInt: true, UpperIsInt: true, StepIsInt: true,
	}}}
	v, err := suggestSingle(h, "net.core.netdev_budget", pc)
	require.NoError(t, err)
	assert.Equal(t, domain.KindInt, v.Kind)
	assert.Equal(t, int64(300), v.Int)
	h.AssertExpectations(t)
}

func TestSuggestSingle_Float(t *testing.T) {
	t.Parallel()
	h := &mockHandle{}
	h.On("SuggestFloat", "min_freq_ghz", 1.0, 3.5, 0.1).Return(2.4, nil)

	pc := domain.ParamConfig{Constraints: []domain.Constraint{{
		Lower: floatPtr(1.0), Upper: floatPtr(3.5), Step: floatPtr(0.1),
	}}}
	v, err := suggestSingle(h, "min_freq_ghz", pc)
	require.NoError(t, err)
	assert.Equal(t, domain.KindFloat, v.Kind)
	assert.InDelta(t, 2.4, v.Float, 1e-9)
	h.AssertExpectations(t)
}

func TestSuggestSingle_NoConstraints(t *testing.T) {
	t.Parallel()
	h := &mockHandle{}
	_, err := suggestSingle(h, "cpu_governor", domain.ParamConfig{})
	require.Error(t, err)
}

func TestSuggest_FlattensEthtool(t *testing.T) {
	t.Parallel()
	h := &mockHandle{}
	h.On("SuggestCategorical", "eth0_tso", []string{"on", "off"}).Return("on", nil)

	settings := domain.Settings{
		Ethtool: map[string]map[string]domain.ParamConfig{
			"eth0": {
				"tso": {Constraints: []domain.Constraint{{Values: []string{"on", "off"}}}},
			},
		},
	}

	assignment, err := New().Suggest(h, settings)
	require.NoError(t, err)
	require.Contains(t, assignment, "eth0_tso")
	assert.Equal(t, "on", assignment["eth0_tso"].Str)
	h.AssertExpectations(t)
}

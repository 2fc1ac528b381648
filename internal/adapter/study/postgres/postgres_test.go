package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godon-project/breeder-worker/internal/domain"
)

// poolStub implements PgxPool for unit tests that don't need a real
// database, mirroring the teacher's hand-rolled pool-stub test style.
type poolStub struct {
	execErr error
}

func (p *poolStub) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, p.execErr
}
func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return nil }
func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented in stub")
}
func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("not implemented in stub")
}

func TestEnsureSchema_PropagatesError(t *testing.T) {
	t.Parallel()
	stub := &poolStub{execErr: errors.New("boom")}
	err := EnsureSchema(context.Background(), stub)
	require.Error(t, err)
}

func TestEnsureSchema_Success(t *testing.T) {
	t.Parallel()
	stub := &poolStub{}
	err := EnsureSchema(context.Background(), stub)
	require.NoError(t, err)
}

func TestKindName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "int", kindName(domain.KindInt))
	assert.Equal(t, "float", kindName(domain.KindFloat))
	assert.Equal(t, "categorical", kindName(domain.KindCategorical))
	assert.Equal(t, "list", kindName(domain.KindList))
}

func TestParamFromRow(t *testing.T) {
	t.Parallel()
	i := int64(7)
	v := paramFromRow("int", &i, nil, nil, nil)
	assert.Equal(t, domain.KindInt, v.Kind)
	assert.Equal(t, int64(7), v.Int)

	f := 1.5
	v = paramFromRow("float", nil, &f, nil, nil)
	assert.Equal(t, domain.KindFloat, v.Kind)
	assert.InDelta(t, 1.5, v.Float, 1e-9)

	s := "cubic"
	v = paramFromRow("categorical", nil, nil, &s, nil)
	assert.Equal(t, "cubic", v.Str)

	v = paramFromRow("list", nil, nil, nil, []byte(`[1,2,3]`))
	assert.Equal(t, []int64{1, 2, 3}, v.List)
}

func TestToFromDirections(t *testing.T) {
	t.Parallel()
	in := []domain.Direction{domain.DirectionMinimize, domain.DirectionMaximize}
	raw := fromDirections(in)
	assert.Equal(t, []string{"minimize", "maximize"}, raw)
	out := toDirections(raw)
	assert.Equal(t, in, out)
}

func TestDominates(t *testing.T) {
	t.Parallel()
	dirs := []domain.Direction{domain.DirectionMinimize}
	a := domain.Trial{Values: []float64{1}}
	b := domain.Trial{Values: []float64{2}}
	assert.True(t, dominates(a, b, dirs))
	assert.False(t, dominates(b, a, dirs))
}

func TestParseTrialState(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.TrialStateComplete, parseTrialState("complete"))
	assert.Equal(t, domain.TrialStatePruned, parseTrialState("pruned"))
	assert.Equal(t, domain.TrialStateFail, parseTrialState("fail"))
	assert.Equal(t, domain.TrialStateRunning, parseTrialState("running"))
}

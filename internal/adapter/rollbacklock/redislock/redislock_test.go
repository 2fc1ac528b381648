package redislock

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, nil)
}

func TestTryAcquire_SecondCallerBlockedUntilReleased(t *testing.T) {
	t.Parallel()
	lock := newTestLock(t)
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx, "target-1", 30)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = lock.TryAcquire(ctx, "target-1", 30)
	require.NoError(t, err)
	require.False(t, ok, "a second acquire on the same key before release must fail")

	require.NoError(t, lock.Release(ctx, "target-1"))

	ok, err = lock.TryAcquire(ctx, "target-1", 30)
	require.NoError(t, err)
	require.True(t, ok, "after release, the key must be acquirable again")
}

func TestRelease_UnheldKeyIsNoop(t *testing.T) {
	t.Parallel()
	lock := newTestLock(t)
	require.NoError(t, lock.Release(context.Background(), "never-acquired"))
}

func TestTryAcquire_DistinctKeysDoNotInterfere(t *testing.T) {
	t.Parallel()
	lock := newTestLock(t)
	ctx := context.Background()

	ok1, err := lock.TryAcquire(ctx, "target-1", 30)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := lock.TryAcquire(ctx, "target-2", 30)
	require.NoError(t, err)
	require.True(t, ok2)
}

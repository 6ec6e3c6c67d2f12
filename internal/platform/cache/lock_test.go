package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerExclusion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "purge", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "purge", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists("lock:purge"))

	again, err := locker.Acquire(ctx, "purge", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLockerExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "purge", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "purge", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	require.True(t, mr.Exists("lock:purge"), "stale holder must not release a lock it lost")
	require.NoError(t, fresh(ctx))
}

func TestNewFailsOnUnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), addr)
	require.Error(t, err)
}

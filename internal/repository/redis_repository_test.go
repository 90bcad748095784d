package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLockRepositoryExclusive(t *testing.T) {
	client, mr := newRedis(t)
	repo := NewLockRepository(client, "test")
	ctx := context.Background()

	release, ok, err := repo.TryAcquire(ctx, "decision:sub-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("test:lock:decision:sub-1"))

	_, ok, err = repo.TryAcquire(ctx, "decision:sub-1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("test:lock:decision:sub-1"))

	_, ok, err = repo.TryAcquire(ctx, "decision:sub-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockRepositoryReleaseDoesNotStealExpiredLock(t *testing.T) {
	client, mr := newRedis(t)
	repo := NewLockRepository(client, "test")
	ctx := context.Background()

	release, ok, err := repo.TryAcquire(ctx, "decision:sub-2", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(200 * time.Millisecond)
	_, ok, err = repo.TryAcquire(ctx, "decision:sub-2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists("test:lock:decision:sub-2"))
}

func TestFingerprintRepositoryOverlap(t *testing.T) {
	client, _ := newRedis(t)
	repo := NewFingerprintRepository(client, "test")
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, "sub-a", []uint64{1, 2, 3, 4}))
	require.NoError(t, repo.Register(ctx, "sub-b", []uint64{3, 9}))

	match, err := repo.Overlap(ctx, "sub-c", []uint64{1, 2, 3, 5})
	require.NoError(t, err)
	assert.Equal(t, "sub-a", match.Owner)
	assert.Equal(t, 3, match.Shared)
	assert.InDelta(t, 0.75, match.Ratio, 0.0001)

	self, err := repo.Overlap(ctx, "sub-a", []uint64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, "sub-b", self.Owner)
	assert.InDelta(t, 0.25, self.Ratio, 0.0001)
}

func TestFingerprintRepositoryRegisterReplacesAndRemove(t *testing.T) {
	client, _ := newRedis(t)
	repo := NewFingerprintRepository(client, "test")
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, "sub-a", []uint64{1, 2}))
	require.NoError(t, repo.Register(ctx, "sub-a", []uint64{7}))

	match, err := repo.Overlap(ctx, "sub-x", []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 0, match.Shared)

	require.NoError(t, repo.Remove(ctx, "sub-a"))
	match, err = repo.Overlap(ctx, "sub-x", []uint64{7})
	require.NoError(t, err)
	assert.Equal(t, "", match.Owner)
	assert.Zero(t, match.Ratio)
}

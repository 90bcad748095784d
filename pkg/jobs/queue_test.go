package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesAndDrainsOnStop(t *testing.T) {
	var handled atomic.Int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		handled.Add(1)
		return nil
	}, QueueConfig{Workers: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "notify"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Stop(ctx)

	assert.EqualValues(t, 10, handled.Load())
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrQueueStopped)
}

func TestQueueDrainsAfterStartContextIsCancelled(t *testing.T) {
	var handled atomic.Int32
	release := make(chan struct{})
	q := NewQueue("shutdown", func(ctx context.Context, job Job) error {
		<-release
		handled.Add(1)
		return nil
	}, QueueConfig{Workers: 2, RetryDelay: time.Millisecond})

	runCtx, cancelRun := context.WithCancel(context.Background())
	q.Start(runCtx)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "decision", Type: "notify"}))
	}
	cancelRun()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	q.Stop(ctx)

	assert.EqualValues(t, 10, handled.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueueRetriesWithBackoff(t *testing.T) {
	var attempts atomic.Int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Stop(ctx)

	assert.EqualValues(t, 3, attempts.Load())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	q := NewQueue("fail", func(ctx context.Context, job Job) error {
		attempts.Add(1)
		return errors.New("permanent")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "doomed"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Stop(ctx)

	assert.EqualValues(t, 3, attempts.Load())
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrQueueStopped)
}

func TestBackoffDoubles(t *testing.T) {
	q := NewQueue("backoff", nil, QueueConfig{RetryDelay: 100 * time.Millisecond})
	assert.Equal(t, 100*time.Millisecond, q.backoff(1))
	assert.Equal(t, 400*time.Millisecond, q.backoff(3))
}

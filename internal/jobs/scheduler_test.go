package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolScheduler_BoundsConcurrency(t *testing.T) {
	pool := NewPoolScheduler(2)
	var running, peak int32
	release := make(chan struct{})

	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		}))
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, pool.Shutdown(context.Background()))

	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestPoolScheduler_RejectsAfterShutdown(t *testing.T) {
	pool := NewPoolScheduler(1)
	require.NoError(t, pool.Shutdown(context.Background()))

	err := pool.Submit(func(context.Context) {})
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestPoolScheduler_ShutdownDeadlineCancelsJobs(t *testing.T) {
	pool := NewPoolScheduler(1)
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolScheduler_ForcedStopStillCallsQueuedJobs(t *testing.T) {
	pool := NewPoolScheduler(1)
	entered := make(chan error, 2)
	job := func(ctx context.Context) {
		entered <- ctx.Err()
		<-ctx.Done()
	}

	require.NoError(t, pool.Submit(job))
	first := <-entered
	require.NoError(t, first, "the first job holds the only slot")
	require.NoError(t, pool.Submit(job))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case err := <-entered:
		assert.ErrorIs(t, err, context.Canceled, "the queued job sees the stop")
	default:
		t.Fatal("queued job was dropped")
	}
}

func TestSyncScheduler_RunsInline(t *testing.T) {
	ran := false
	require.NoError(t, SyncScheduler{}.Submit(func(context.Context) { ran = true }))
	assert.True(t, ran)
}

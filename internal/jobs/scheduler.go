package jobs

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrSchedulerClosed is returned by Submit after Shutdown
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// Scheduler runs jobs in the background
type Scheduler interface {
	Submit(job func(ctx context.Context)) error
}

// PoolScheduler runs each job on its own goroutine, with at most
// maxConcurrent running at once. Jobs beyond the limit wait for a slot.
type PoolScheduler struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPoolScheduler creates a scheduler bounded by maxConcurrent
func NewPoolScheduler(maxConcurrent int) *PoolScheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PoolScheduler{
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit queues job. The context passed to job ends when the scheduler is
// forced to stop. A job still waiting for a slot at that point is called with
// the already cancelled context instead of being dropped.
func (p *PoolScheduler) Submit(job func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSchedulerClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			// forced stop while queued: the job still gets to record an outcome
			job(p.ctx)
			return
		}
		defer p.sem.Release(1)
		job(p.ctx)
	}()
	return nil
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, running jobs are cancelled and ctx's error is returned.
func (p *PoolScheduler) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// SyncScheduler runs jobs on the caller's goroutine
type SyncScheduler struct{}

// Submit runs job before returning
func (SyncScheduler) Submit(job func(ctx context.Context)) error {
	job(context.Background())
	return nil
}

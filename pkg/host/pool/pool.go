// Package pool implements a host scheduler backed by a bounded pool of
// goroutines. Delays are wall clock durations.
package pool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ScheduledTask is a handle to work scheduled on the pool.
type ScheduledTask struct {
	id        int64
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	pool      *Scheduler
}

// ID returns the pool-assigned id.
func (t *ScheduledTask) ID() int64 {
	return t.id
}

// Cancel stops the task from being started again.
func (t *ScheduledTask) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// IsCancelled reports whether the task was cancelled, directly or by closing
// the pool.
func (t *ScheduledTask) IsCancelled() bool {
	return t.cancelled.Load() || t.pool.ctx.Err() != nil
}

// Scheduler runs work on at most size concurrent goroutines.
type Scheduler struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	lastID atomic.Int64
	wg     sync.WaitGroup
}

// New creates a pool. A non-positive size uses twice the number of CPUs.
func New(size int) *Scheduler {
	if size <= 0 {
		size = runtime.NumCPU() * 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RunAsync runs fn as soon as a worker slot is free.
func (s *Scheduler) RunAsync(fn func()) *ScheduledTask {
	t := s.newTask()
	if s.ctx.Err() != nil {
		return t
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.cancel()
		s.execute(t, fn)
	}()
	return t
}

// Schedule runs fn once after delay.
func (s *Scheduler) Schedule(fn func(), delay time.Duration) *ScheduledTask {
	t := s.newTask()
	if s.ctx.Err() != nil {
		return t
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.execute(t, fn)
		case <-t.ctx.Done():
		}
	}()
	return t
}

// ScheduleRepeating runs fn after delay and then at a fixed rate of period.
// A non-positive period is raised to one millisecond.
func (s *Scheduler) ScheduleRepeating(fn func(), delay, period time.Duration) *ScheduledTask {
	if period <= 0 {
		period = time.Millisecond
	}
	t := s.newTask()
	if s.ctx.Err() != nil {
		return t
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-t.ctx.Done():
			timer.Stop()
			return
		}
		s.execute(t, fn)

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.execute(t, fn)
			case <-t.ctx.Done():
				return
			}
		}
	}()
	return t
}

// Close cancels every task and waits for running work to return.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) newTask() *ScheduledTask {
	ctx, cancel := context.WithCancel(s.ctx)
	return &ScheduledTask{
		id:     s.lastID.Add(1),
		ctx:    ctx,
		cancel: cancel,
		pool:   s,
	}
}

func (s *Scheduler) execute(t *ScheduledTask, fn func()) {
	if err := s.sem.Acquire(t.ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)
	if t.cancelled.Load() || s.ctx.Err() != nil {
		return
	}
	fn()
}

package scheduler

import (
	"context"
	"time"

	"github.com/lunemec/spicord/pkg/host/pool"
)

// PoolAdapter schedules work on a goroutine pool host.
type PoolAdapter struct {
	host *pool.Scheduler
	g    guard
}

// NewPoolAdapter wraps a pool host scheduler.
func NewPoolAdapter(host *pool.Scheduler) *PoolAdapter {
	return &PoolAdapter{host: host}
}

func (a *PoolAdapter) RunAsync(fn Func) *Task {
	return a.g.submit(false, fn, func(run func()) func() {
		return a.host.RunAsync(run).Cancel
	})
}

func (a *PoolAdapter) RunAsyncLater(fn Func, delay time.Duration) *Task {
	return a.g.submit(false, fn, func(run func()) func() {
		return a.host.Schedule(run, delay).Cancel
	})
}

func (a *PoolAdapter) RunAsyncLaterRepeating(fn Func, delay, period time.Duration) *Task {
	return a.g.submit(true, fn, func(run func()) func() {
		return a.host.ScheduleRepeating(run, delay, period).Cancel
	})
}

func (a *PoolAdapter) Shutdown() {
	a.g.shutdownNow()
}

func (a *PoolAdapter) ShutdownNow() []*Task {
	return a.g.shutdownNow()
}

func (a *PoolAdapter) IsShutdown() bool {
	return a.g.isShutdown()
}

func (a *PoolAdapter) AwaitTermination(ctx context.Context) bool {
	return a.g.awaitTermination(ctx)
}

package scheduler

import (
	"context"
	"time"

	"github.com/lunemec/spicord/pkg/host/loop"
)

// LoopAdapter schedules work on a cooperative single-goroutine host. Work is
// serialized with every other task of the loop, so it must not Await another
// task of the same loop.
type LoopAdapter struct {
	host *loop.Scheduler
	g    guard
}

// NewLoopAdapter wraps a loop host scheduler.
func NewLoopAdapter(host *loop.Scheduler) *LoopAdapter {
	return &LoopAdapter{host: host}
}

func (a *LoopAdapter) RunAsync(fn Func) *Task {
	return a.g.submit(false, fn, func(run func()) func() {
		return a.host.BuildTask(run).Schedule().Cancel
	})
}

func (a *LoopAdapter) RunAsyncLater(fn Func, delay time.Duration) *Task {
	return a.g.submit(false, fn, func(run func()) func() {
		return a.host.BuildTask(run).Delay(delay).Schedule().Cancel
	})
}

func (a *LoopAdapter) RunAsyncLaterRepeating(fn Func, delay, period time.Duration) *Task {
	if period <= 0 {
		period = time.Millisecond
	}
	return a.g.submit(true, fn, func(run func()) func() {
		return a.host.BuildTask(run).Delay(delay).Repeat(period).Schedule().Cancel
	})
}

func (a *LoopAdapter) Shutdown() {
	a.g.shutdownNow()
}

func (a *LoopAdapter) ShutdownNow() []*Task {
	return a.g.shutdownNow()
}

func (a *LoopAdapter) IsShutdown() bool {
	return a.g.isShutdown()
}

func (a *LoopAdapter) AwaitTermination(ctx context.Context) bool {
	return a.g.awaitTermination(ctx)
}

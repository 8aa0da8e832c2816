package scheduler

import (
	"context"
	"time"

	"github.com/lunemec/spicord/pkg/host/tick"
)

// TickAdapter schedules work on a fixed-tick host. Wall clock delays are
// rounded up to whole ticks.
type TickAdapter struct {
	host *tick.Scheduler
	g    guard
}

// NewTickAdapter wraps a tick host scheduler.
func NewTickAdapter(host *tick.Scheduler) *TickAdapter {
	return &TickAdapter{host: host}
}

func (a *TickAdapter) RunAsync(fn Func) *Task {
	return a.g.submit(false, fn, func(run func()) func() {
		return a.host.RunTaskAsynchronously(run).Cancel
	})
}

func (a *TickAdapter) RunAsyncLater(fn Func, delay time.Duration) *Task {
	ticks := ToTicks(delay, a.host.TickDuration())
	return a.g.submit(false, fn, func(run func()) func() {
		return a.host.RunTaskLaterAsynchronously(run, ticks).Cancel
	})
}

func (a *TickAdapter) RunAsyncLaterRepeating(fn Func, delay, period time.Duration) *Task {
	delayTicks := ToTicks(delay, a.host.TickDuration())
	periodTicks := ToTicks(period, a.host.TickDuration())
	if periodTicks < 1 {
		periodTicks = 1
	}
	return a.g.submit(true, fn, func(run func()) func() {
		return a.host.RunTaskTimerAsynchronously(run, delayTicks, periodTicks).Cancel
	})
}

func (a *TickAdapter) Shutdown() {
	a.g.shutdownNow()
}

func (a *TickAdapter) ShutdownNow() []*Task {
	return a.g.shutdownNow()
}

func (a *TickAdapter) IsShutdown() bool {
	return a.g.isShutdown()
}

func (a *TickAdapter) AwaitTermination(ctx context.Context) bool {
	return a.g.awaitTermination(ctx)
}

// ToTicks converts d to a number of ticks of length tick, rounding up.
// Non-positive durations are zero ticks.
func ToTicks(d, tick time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + tick - 1) / tick)
}

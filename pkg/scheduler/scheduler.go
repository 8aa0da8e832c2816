// Package scheduler normalizes the task schedulers of different hosts behind a
// single asynchronous, future-returning interface.
//
// Every host scheduler gets its own adapter (TickAdapter, PoolAdapter,
// LoopAdapter) which only translates "run now", "run later" and "run
// periodically" into the host primitive. Work never runs on the goroutine that
// scheduled it.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrCancelled is the error of a task cancelled before it completed.
	ErrCancelled = errors.New("task cancelled")
	// ErrTimeout is returned by Await when the timeout elapses first.
	ErrTimeout = errors.New("timed out waiting for task")
	// ErrShutdown is the error of a task rejected by a shut down scheduler.
	ErrShutdown = errors.New("scheduler is shut down")
)

// Scheduler runs work asynchronously on host workers.
type Scheduler interface {
	// RunAsync runs fn as soon as possible.
	RunAsync(fn Func) *Task
	// RunAsyncLater runs fn once after at least delay.
	RunAsyncLater(fn Func, delay time.Duration) *Task
	// RunAsyncLaterRepeating runs fn after delay and then every period until
	// the returned task is cancelled.
	RunAsyncLaterRepeating(fn Func, delay, period time.Duration) *Task
	// Shutdown stops accepting work. Pending tasks never run and complete
	// with ErrShutdown.
	Shutdown()
	// ShutdownNow is Shutdown returning the tasks that never ran. Periodic
	// tasks that ran at least once are not included.
	ShutdownNow() []*Task
	// IsShutdown reports whether Shutdown was called.
	IsShutdown() bool
	// AwaitTermination waits for in-flight invocations to finish after a
	// shutdown. It returns false if ctx expires first.
	AwaitTermination(ctx context.Context) bool
}

// guard holds the bookkeeping every adapter needs: the shutdown flag, the
// pending tasks (for cancellation routing only) and the in-flight count.
type guard struct {
	mu       sync.Mutex
	shutdown bool
	pending  map[*Task]struct{}
	running  int
	idle     chan struct{}
}

// submit creates a task and hands a runner for it to schedule. schedule must
// arrange for run to be called on a host worker and return a function that
// cancels the host task.
func (g *guard) submit(periodic bool, fn Func, schedule func(run func()) (cancel func())) *Task {
	t := newTask(periodic)

	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		t.complete(nil, ErrShutdown)
		return t
	}
	if g.pending == nil {
		g.pending = make(map[*Task]struct{})
	}
	g.pending[t] = struct{}{}
	t.onComplete = g.untrack
	g.mu.Unlock()

	cancel := schedule(func() {
		t.run(fn, g.enter, g.exit)
	})
	if cancel != nil {
		t.setCancelHook(cancel)
	}
	return t
}

func (g *guard) untrack(t *Task) {
	g.mu.Lock()
	delete(g.pending, t)
	g.mu.Unlock()
}

func (g *guard) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return false
	}
	g.running++
	return true
}

func (g *guard) exit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running--
	if g.running == 0 && g.idle != nil {
		close(g.idle)
		g.idle = nil
	}
}

func (g *guard) shutdownNow() []*Task {
	g.mu.Lock()
	g.shutdown = true
	pending := make([]*Task, 0, len(g.pending))
	for t := range g.pending {
		pending = append(pending, t)
	}
	g.mu.Unlock()

	var never []*Task
	for _, t := range pending {
		t.mu.Lock()
		running := t.running
		ran := t.started
		hook := t.cancelHook
		if running {
			// Let the running invocation finish, but make it the last one.
			t.cancelled = true
		} else {
			t.completeLocked(nil, ErrShutdown)
		}
		t.mu.Unlock()
		if hook != nil {
			hook()
		}
		if !ran {
			never = append(never, t)
		}
	}
	return never
}

func (g *guard) isShutdown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shutdown
}

func (g *guard) awaitTermination(ctx context.Context) bool {
	g.mu.Lock()
	if g.running == 0 {
		g.mu.Unlock()
		return true
	}
	if g.idle == nil {
		g.idle = make(chan struct{})
	}
	idle := g.idle
	g.mu.Unlock()

	select {
	case <-idle:
		return true
	case <-ctx.Done():
		return false
	}
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// Func is a unit of work. Its return values are stored in the Task running it.
type Func func() (interface{}, error)

// Task is a cancellable deferred unit of work with a result slot.
//
// Once a Task is completed its result and error never change. Cancel only
// prevents invocations that have not started yet.
type Task struct {
	id       uuid.UUID
	periodic bool

	mu         sync.Mutex
	cancelled  bool
	running    bool
	started    bool
	completed  bool
	result     interface{}
	err        error
	done       chan struct{}
	cancelHook func()
	onComplete func(*Task)
}

func newTask(periodic bool) *Task {
	return &Task{
		id:       uuid.Must(uuid.NewV4()),
		periodic: periodic,
		done:     make(chan struct{}),
	}
}

// ID returns the unique identity of the task.
func (t *Task) ID() uuid.UUID {
	return t.id
}

// Periodic reports whether the task repeats until cancelled.
func (t *Task) Periodic() bool {
	return t.periodic
}

// Cancel prevents any invocation that has not started yet. It is idempotent and
// never interrupts an invocation already in progress.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.completed || t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	hook := t.cancelHook
	if !t.running {
		t.completeLocked(nil, ErrCancelled)
	}
	t.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// IsCancelled reports whether Cancel was called before the task completed.
func (t *Task) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// IsDone reports whether the task completed, failed or was cancelled.
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed once the task is completed.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Await blocks until the task completes or timeout elapses. A timeout of zero
// or less waits forever.
//
// Errors returned by the work are wrapped in *ExecutionError, a cancelled task
// returns ErrCancelled and an expired timeout returns ErrTimeout.
func (t *Task) Await(timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		return t.Wait(context.Background())
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.outcome()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Wait is like Await but bounded by ctx. A cancelled or expired ctx returns
// ErrTimeout wrapping the context error.
func (t *Task) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-t.done:
		return t.outcome()
	case <-ctx.Done():
		return nil, errors.Wrap(ErrTimeout, ctx.Err().Error())
	}
}

func (t *Task) outcome() (interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// setCancelHook stores the host cancel function. A task that was cancelled or
// completed in the meantime cancels the host task right away.
func (t *Task) setCancelHook(hook func()) {
	t.mu.Lock()
	if t.cancelled || t.completed {
		t.mu.Unlock()
		hook()
		return
	}
	t.cancelHook = hook
	t.mu.Unlock()
}

// complete resolves the task from outside an invocation, e.g. on rejection.
func (t *Task) complete(result interface{}, err error) {
	t.mu.Lock()
	t.completeLocked(result, err)
	t.mu.Unlock()
}

func (t *Task) completeLocked(result interface{}, err error) {
	if t.completed {
		return
	}
	t.completed = true
	t.result = result
	t.err = err
	close(t.done)
	if t.onComplete != nil {
		t.onComplete(t)
	}
}

// run performs one invocation. enter is asked for permission under the task
// lock, so a concurrent Cancel either happens before (and the invocation is
// skipped) or after the invocation started. exit is called once the invocation
// has finished.
func (t *Task) run(fn Func, enter func() bool, exit func()) {
	t.mu.Lock()
	if t.completed || t.cancelled || t.running {
		t.mu.Unlock()
		return
	}
	if enter != nil && !enter() {
		hook := t.cancelHook
		t.completeLocked(nil, ErrShutdown)
		t.mu.Unlock()
		if hook != nil {
			hook()
		}
		return
	}
	t.running = true
	t.started = true
	t.mu.Unlock()

	result, err := call(fn)
	if exit != nil {
		exit()
	}

	t.mu.Lock()
	t.running = false
	var hook func()
	switch {
	case err != nil:
		hook = t.cancelHook
		t.completeLocked(nil, &ExecutionError{Err: err})
	case !t.periodic:
		t.completeLocked(result, nil)
	case t.cancelled:
		t.completeLocked(result, ErrCancelled)
	default:
		t.result = result
	}
	t.mu.Unlock()

	// A failed periodic task must not fire again.
	if hook != nil && t.periodic {
		hook()
	}
}

func call(fn Func) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// ExecutionError wraps an error returned (or a panic raised) by the work of a task.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task execution failed: %v", e.Err)
}

// Cause returns the underlying work error.
func (e *ExecutionError) Cause() error {
	return e.Err
}

// Unwrap returns the underlying work error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Package loop implements a cooperative host scheduler: every task runs on one
// dedicated goroutine, one at a time, in the order it became due.
//
// A task must never block waiting for another task of the same loop.
package loop

import (
	"sync"
	"time"
)

// TaskStatus is the state of a scheduled task.
type TaskStatus int

const (
	Scheduled TaskStatus = iota
	Finished
	Cancelled
)

func (s TaskStatus) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// ScheduledTask is a handle to a task on the loop.
type ScheduledTask struct {
	loop   *Scheduler
	fn     func()
	period time.Duration

	mu     sync.Mutex
	status TaskStatus
	timer  *time.Timer
}

// Status returns the current task status.
func (t *ScheduledTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Cancel stops the task. A queued invocation is dropped when it reaches the
// front of the loop.
func (t *ScheduledTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != Scheduled {
		return
	}
	t.status = Cancelled
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *ScheduledTask) arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != Scheduled {
		return
	}
	t.timer = time.AfterFunc(d, func() {
		t.loop.enqueue(t)
	})
}

// TaskBuilder configures a task before it is scheduled.
type TaskBuilder struct {
	loop   *Scheduler
	fn     func()
	delay  time.Duration
	period time.Duration
}

// Delay sets the initial delay.
func (b *TaskBuilder) Delay(d time.Duration) *TaskBuilder {
	b.delay = d
	return b
}

// Repeat makes the task run every d after the first run.
func (b *TaskBuilder) Repeat(d time.Duration) *TaskBuilder {
	b.period = d
	return b
}

// Schedule submits the task to the loop.
func (b *TaskBuilder) Schedule() *ScheduledTask {
	t := &ScheduledTask{
		loop:   b.loop,
		fn:     b.fn,
		period: b.period,
	}
	if b.delay <= 0 {
		b.loop.enqueue(t)
	} else {
		t.arm(b.delay)
	}
	return t
}

// Scheduler is a single goroutine draining a queue of due tasks.
type Scheduler struct {
	mu     sync.Mutex
	queue  []*ScheduledTask
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// New starts the loop goroutine.
func New() *Scheduler {
	s := &Scheduler{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// BuildTask starts building a task running fn.
func (s *Scheduler) BuildTask(fn func()) *TaskBuilder {
	return &TaskBuilder{loop: s, fn: fn}
}

// Stop ends the loop after the running task returns. Queued tasks are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
	<-s.done
}

func (s *Scheduler) enqueue(t *ScheduledTask) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) next() *ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	t := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return t
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		for t := s.next(); t != nil; t = s.next() {
			select {
			case <-s.stop:
				return
			default:
			}
			s.execute(t)
		}
	}
}

func (s *Scheduler) execute(t *ScheduledTask) {
	if t.Status() != Scheduled {
		return
	}
	t.fn()
	if t.period > 0 {
		t.arm(t.period)
		return
	}
	t.mu.Lock()
	if t.status == Scheduled {
		t.status = Finished
	}
	t.mu.Unlock()
}

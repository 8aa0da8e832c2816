// Package tick implements a fixed-tick host scheduler. Delays and periods are
// expressed in ticks; due tasks are started asynchronously at tick boundaries.
package tick

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDuration is the length of one tick (20 ticks per second).
const DefaultDuration = 50 * time.Millisecond

// Task is a handle to a task scheduled on the tick scheduler.
type Task struct {
	id        int64
	fn        func()
	next      int64
	period    int64
	cancelled atomic.Bool
}

// ID returns the scheduler-assigned task id.
func (t *Task) ID() int64 {
	return t.id
}

// Cancel stops future executions of the task.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether Cancel was called.
func (t *Task) IsCancelled() bool {
	return t.cancelled.Load()
}

// Scheduler advances a tick counter at a fixed rate and starts due tasks in
// their own goroutines.
type Scheduler struct {
	duration time.Duration

	mu      sync.Mutex
	current int64
	lastID  int64
	tasks   map[int64]*Task

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New starts a tick scheduler. A non-positive duration uses DefaultDuration.
func New(duration time.Duration) *Scheduler {
	if duration <= 0 {
		duration = DefaultDuration
	}
	s := &Scheduler{
		duration: duration,
		tasks:    make(map[int64]*Task),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// TickDuration returns the wall clock length of one tick.
func (s *Scheduler) TickDuration() time.Duration {
	return s.duration
}

// CurrentTick returns the number of ticks elapsed since start.
func (s *Scheduler) CurrentTick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// RunTaskAsynchronously starts fn right away in a new goroutine.
func (s *Scheduler) RunTaskAsynchronously(fn func()) *Task {
	t := s.add(fn, 0, 0)
	s.mu.Lock()
	delete(s.tasks, t.id)
	s.mu.Unlock()
	go fn()
	return t
}

// RunTaskLaterAsynchronously starts fn after delay ticks.
func (s *Scheduler) RunTaskLaterAsynchronously(fn func(), delay int64) *Task {
	if delay <= 0 {
		return s.RunTaskAsynchronously(fn)
	}
	return s.add(fn, delay, 0)
}

// RunTaskTimerAsynchronously starts fn after delay ticks and then every period
// ticks. A period below one tick is raised to one tick.
func (s *Scheduler) RunTaskTimerAsynchronously(fn func(), delay, period int64) *Task {
	if period < 1 {
		period = 1
	}
	if delay < 0 {
		delay = 0
	}
	return s.add(fn, delay, period)
}

// Pending returns the number of tasks waiting for a future tick.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop halts the tick loop. Tasks that have not fired never will.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	<-s.stopped
}

func (s *Scheduler) add(fn func(), delay, period int64) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	t := &Task{
		id:     s.lastID,
		fn:     fn,
		next:   s.current + delay,
		period: period,
	}
	s.tasks[t.id] = t
	return t
}

func (s *Scheduler) loop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.duration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, t := range s.advance() {
				go t.fn()
			}
		case <-s.stop:
			return
		}
	}
}

// advance moves to the next tick and returns the tasks due on it, in
// scheduling order.
func (s *Scheduler) advance() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current++
	var due []*Task
	for id, t := range s.tasks {
		if t.IsCancelled() {
			delete(s.tasks, id)
			continue
		}
		if t.next > s.current {
			continue
		}
		due = append(due, t)
		if t.period > 0 {
			t.next = s.current + t.period
		} else {
			delete(s.tasks, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].id < due[j].id
	})
	return due
}

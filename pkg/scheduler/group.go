package scheduler

import (
	"context"
	"time"
)

// Group is a scoped Scheduler running its work on a parent. Shutting a group
// down puts it in silent rejection mode: later submissions complete at once
// with ErrShutdown and nothing is raised. The parent is left untouched.
type Group struct {
	parent Scheduler
	g      guard
}

// NewGroup returns a Group on top of parent.
func NewGroup(parent Scheduler) *Group {
	return &Group{parent: parent}
}

func (s *Group) RunAsync(fn Func) *Task {
	return s.g.submit(false, fn, func(run func()) func() {
		return s.parent.RunAsync(wrap(run)).Cancel
	})
}

func (s *Group) RunAsyncLater(fn Func, delay time.Duration) *Task {
	return s.g.submit(false, fn, func(run func()) func() {
		return s.parent.RunAsyncLater(wrap(run), delay).Cancel
	})
}

func (s *Group) RunAsyncLaterRepeating(fn Func, delay, period time.Duration) *Task {
	return s.g.submit(true, fn, func(run func()) func() {
		return s.parent.RunAsyncLaterRepeating(wrap(run), delay, period).Cancel
	})
}

func (s *Group) Shutdown() {
	s.g.shutdownNow()
}

func (s *Group) ShutdownNow() []*Task {
	return s.g.shutdownNow()
}

func (s *Group) IsShutdown() bool {
	return s.g.isShutdown()
}

func (s *Group) AwaitTermination(ctx context.Context) bool {
	return s.g.awaitTermination(ctx)
}

func wrap(run func()) Func {
	return func() (interface{}, error) {
		run()
		return nil, nil
	}
}

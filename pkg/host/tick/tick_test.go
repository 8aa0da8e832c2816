package tick

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunTaskLater(t *testing.T) {
	s := New(5 * time.Millisecond)
	defer s.Stop()

	done := make(chan int64, 1)
	s.RunTaskLaterAsynchronously(func() {
		done <- s.CurrentTick()
	}, 3)
	assert.Equal(t, 1, s.Pending())

	select {
	case tick := <-done:
		assert.GreaterOrEqual(t, tick, int64(3))
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRunTaskTimerCancel(t *testing.T) {
	s := New(2 * time.Millisecond)
	defer s.Stop()

	var runs atomic.Int32
	task := s.RunTaskTimerAsynchronously(func() {
		runs.Add(1)
	}, 0, 1)
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 2*time.Millisecond)

	task.Cancel()
	assert.True(t, task.IsCancelled())
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 2*time.Millisecond)

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), after+1)
}

func TestStopDropsPending(t *testing.T) {
	s := New(time.Millisecond)
	var ran atomic.Bool
	s.RunTaskLaterAsynchronously(func() { ran.Store(true) }, 1000)
	s.Stop()
	s.Stop()
	assert.False(t, ran.Load())

	d := New(0)
	defer d.Stop()
	assert.Equal(t, DefaultDuration, d.TickDuration())
}

package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmFires(t *testing.T) {
	s := NewTimers()
	fired := make(chan struct{})
	s.Arm("m1", 10*time.Millisecond, func() { close(fired) })
	assert.True(t, s.Armed("m1"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, s.Armed("m1"))
	assert.Equal(t, 0, s.Len())
}

func TestCancelIsIdempotent(t *testing.T) {
	s := NewTimers()
	var calls atomic.Int32
	h := s.Arm("m1", 20*time.Millisecond, func() { calls.Add(1) })

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	assert.False(t, s.Cancel("m1"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	s := NewTimers()
	fired := make(chan struct{})
	h := s.Arm("m1", time.Millisecond, func() { close(fired) })
	<-fired
	assert.False(t, h.Cancel())
	assert.False(t, s.Cancel("m1"))
}

func TestRearmReplacesAndStaleHandleIsInert(t *testing.T) {
	s := NewTimers()
	var first, second atomic.Int32
	old := s.Arm("m1", 10*time.Millisecond, func() { first.Add(1) })
	done := make(chan struct{})
	s.Arm("m1", 30*time.Millisecond, func() { second.Add(1); close(done) })

	assert.False(t, old.Cancel(), "stale handle must not cancel the new timer")
	require.True(t, s.Armed("m1"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second timer did not fire")
	}
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestTimersAreIndependent(t *testing.T) {
	s := NewTimers()
	release := make(chan struct{})
	fast := make(chan struct{})

	s.Arm("slow", time.Millisecond, func() { <-release })
	s.Arm("fast", 5*time.Millisecond, func() { close(fast) })

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("a blocked callback delayed another match")
	}
	close(release)
}

func TestStop(t *testing.T) {
	s := NewTimers()
	var calls atomic.Int32
	s.Arm("a", 10*time.Millisecond, func() { calls.Add(1) })
	s.Arm("b", 10*time.Millisecond, func() { calls.Add(1) })
	s.Stop()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, s.Len())
}

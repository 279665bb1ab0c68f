package timeutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRealClock_AfterFunc(t *testing.T) {
	var clock Clock = RealClock{}
	done := make(chan struct{})
	clock.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AfterFunc callback did not fire")
	}

	stopped := clock.AfterFunc(time.Hour, func() { t.Error("stopped timer fired") })
	if !stopped.Stop() {
		t.Error("Stop() = false for a pending timer")
	}
}

func TestMockClock_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	var order []int
	c.AfterFunc(20*time.Millisecond, func() { order = append(order, 2) })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
	c.AfterFunc(time.Second, func() { order = append(order, 3) })

	if c.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", c.Pending())
	}

	c.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("fired order = %v, want [1 2]", order)
	}
	if got := c.Now(); !got.Equal(start.Add(25 * time.Millisecond)) {
		t.Errorf("Now() = %v", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
}

func TestMockClock_Stop(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	var fired atomic.Bool
	tm := c.AfterFunc(time.Millisecond, func() { fired.Store(true) })

	if !tm.Stop() {
		t.Fatal("Stop() = false for a pending timer")
	}
	if tm.Stop() {
		t.Error("second Stop() = true")
	}
	c.Advance(time.Second)
	if fired.Load() {
		t.Error("stopped timer fired")
	}
}

func TestMockClock_WaitForTimers(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	go c.AfterFunc(time.Second, func() {})

	done := make(chan struct{})
	go func() {
		c.WaitForTimers(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForTimers did not return")
	}
}

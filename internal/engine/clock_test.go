package engine

import (
	"sync"
	"testing"
	"time"
)

func TestMultiplierClock_TicksMonotonically(t *testing.T) {
	var mu sync.Mutex
	var ticks []float64
	done := make(chan struct{})

	c := NewMultiplierClock(2*time.Millisecond, 0.001, func(m float64) {
		mu.Lock()
		ticks = append(ticks, m)
		if len(ticks) == 10 {
			close(done)
		}
		mu.Unlock()
	}, func() {})

	c.Start(1000) // far away, never crashes during the test
	defer c.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ticks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < 10; i++ {
		if ticks[i] < ticks[i-1] {
			t.Errorf("tick %d decreased: %f -> %f", i, ticks[i-1], ticks[i])
		}
	}
	if ticks[0] < 1.00 {
		t.Errorf("multiplier below 1.00: %f", ticks[0])
	}
}

func TestMultiplierClock_SignalsCrash(t *testing.T) {
	crashed := make(chan struct{})
	c := NewMultiplierClock(2*time.Millisecond, 1.0, func(float64) {}, func() {
		close(crashed)
	})

	c.Start(1.50) // crossed on the first tick
	defer c.Stop()

	select {
	case <-crashed:
	case <-time.After(2 * time.Second):
		t.Fatal("crash signal never fired")
	}

	// Crossing halts the clock; the multiplier stops advancing.
	m1 := c.Current()
	time.Sleep(20 * time.Millisecond)
	if c.Current() != m1 {
		t.Errorf("clock still advancing after crash: %f -> %f", m1, c.Current())
	}
}

func TestMultiplierClock_PauseKeepsElapsed(t *testing.T) {
	c := NewMultiplierClock(time.Hour, 0.001, func(float64) {}, func() {})
	c.Start(1000)
	defer c.Stop()

	time.Sleep(20 * time.Millisecond)
	c.Pause()

	m1 := c.Current()
	if m1 <= 1.00 {
		t.Fatalf("expected progress before pause, got %f", m1)
	}

	time.Sleep(20 * time.Millisecond)
	if c.Current() != m1 {
		t.Errorf("multiplier advanced while paused: %f -> %f", m1, c.Current())
	}

	c.Resume()
	time.Sleep(20 * time.Millisecond)
	if c.Current() <= m1 {
		t.Errorf("multiplier did not advance after resume: %f", c.Current())
	}
}

func TestMultiplierClock_StartResets(t *testing.T) {
	c := NewMultiplierClock(time.Hour, 0.001, func(float64) {}, func() {})
	c.Start(1000)
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	if c.Current() <= 1.00 {
		t.Fatal("expected progress in the first run")
	}

	c.Start(1000)
	defer c.Stop()
	if m := c.Current(); m > 1.01 {
		t.Errorf("expected multiplier near 1.00 after restart, got %f", m)
	}
}

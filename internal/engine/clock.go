package engine

import (
	"sync"
	"time"
)

// MultiplierClock advances the shared multiplier on a fixed tick. The
// multiplier is a pure function of accumulated running time, so it is
// monotonically non-decreasing within one running phase and survives
// pause/resume without losing progress.
type MultiplierClock struct {
	interval time.Duration
	growth   float64 // multiplier gain per elapsed millisecond

	onTick  func(mult float64)
	onCrash func()

	mu         sync.Mutex
	crashPoint float64
	startedAt  time.Time
	elapsed    time.Duration // accumulated before the current run segment
	running    bool
	stop       chan struct{}
}

// NewMultiplierClock creates a stopped clock. onTick fires every interval
// with the current multiplier; onCrash fires once when the multiplier
// crosses the crash point.
func NewMultiplierClock(interval time.Duration, growth float64, onTick func(float64), onCrash func()) *MultiplierClock {
	return &MultiplierClock{
		interval: interval,
		growth:   growth,
		onTick:   onTick,
		onCrash:  onCrash,
	}
}

// Start resets elapsed time and begins ticking toward crashPoint
func (c *MultiplierClock) Start(crashPoint float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haltLocked()
	c.crashPoint = crashPoint
	c.elapsed = 0
	c.startedAt = time.Now()
	c.running = true
	c.stop = make(chan struct{})
	go c.loop(c.stop)
}

// Pause freezes the clock, keeping accumulated elapsed time
func (c *MultiplierClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.elapsed += time.Since(c.startedAt)
	c.haltLocked()
}

// Resume restarts ticking from the frozen elapsed time toward the same
// crash point
func (c *MultiplierClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.startedAt = time.Now()
	c.running = true
	c.stop = make(chan struct{})
	go c.loop(c.stop)
}

// Stop halts ticking entirely; elapsed time resets at the next Start
func (c *MultiplierClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.elapsed += time.Since(c.startedAt)
	}
	c.haltLocked()
}

// Current returns the multiplier as of now. Safe to call from any
// goroutine; reads are consistent with the tick arithmetic.
func (c *MultiplierClock) Current() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *MultiplierClock) currentLocked() float64 {
	elapsed := c.elapsed
	if c.running {
		elapsed += time.Since(c.startedAt)
	}
	return 1.00 + float64(elapsed.Milliseconds())*c.growth
}

// haltLocked stops the tick goroutine. Callers hold c.mu.
func (c *MultiplierClock) haltLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

func (c *MultiplierClock) loop(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if !c.running || c.stop != stop {
				c.mu.Unlock()
				return
			}
			mult := c.currentLocked()
			crossed := mult >= c.crashPoint
			if crossed {
				// Halt before signaling so no further ticks fire.
				c.elapsed += time.Since(c.startedAt)
				c.haltLocked()
			}
			c.mu.Unlock()

			if crossed {
				c.onCrash()
				return
			}
			c.onTick(mult)
		}
	}
}

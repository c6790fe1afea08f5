package inactivity

import (
	"fmt"
	"sync"
	"time"
)

// Countdown drives the "logging out in M:SS" text shown with the warning.
// It ticks once per second down to zero and then stops. It is purely
// cosmetic: the monitor's logout timer decides when the session ends.
type Countdown struct {
	sched  Scheduler
	onTick func(remaining time.Duration)

	mu       sync.Mutex
	deadline time.Time
	timer    Timer
	seq      uint64
}

// NewCountdown returns a stopped countdown that reports each tick to onTick.
func NewCountdown(sched Scheduler, onTick func(remaining time.Duration)) *Countdown {
	return &Countdown{sched: sched, onTick: onTick}
}

// Start (re)starts the countdown from the given duration. The first tick is
// delivered immediately.
func (c *Countdown) Start(from time.Duration) {
	if from < 0 {
		from = 0
	}
	c.mu.Lock()
	c.stopLocked()
	c.seq++
	seq := c.seq
	c.deadline = c.sched.Now().Add(from)
	c.mu.Unlock()

	c.tick(seq)
}

// Stop halts the countdown. No further ticks are delivered.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.seq++
}

// Running reports whether more ticks are scheduled.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Countdown) tick(seq uint64) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	remaining := c.deadline.Sub(c.sched.Now()).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > 0 {
		c.timer = c.sched.AfterFunc(time.Second, func() { c.tick(seq) })
	}
	c.mu.Unlock()

	c.onTick(remaining)
}

func (c *Countdown) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// FormatRemaining renders a duration as M:SS for the countdown text.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

package inactivity

import (
	"sync"
	"time"
)

// Debouncer collapses a burst of triggers into one trailing call. The call
// receives the time of the last trigger in the burst.
type Debouncer struct {
	mu    sync.Mutex
	sched Scheduler
	wait  time.Duration
	fn    func(last time.Time)

	timer Timer
	seq   uint64
	last  time.Time
}

// NewDebouncer returns a debouncer that calls fn once no trigger has arrived
// for wait.
func NewDebouncer(sched Scheduler, wait time.Duration, fn func(last time.Time)) *Debouncer {
	return &Debouncer{sched: sched, wait: wait, fn: fn}
}

// Trigger records an event and restarts the quiet-period timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = d.sched.Now()
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.sched.AfterFunc(d.wait, func() { d.fire(seq) })
}

// Cancel drops a pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a trailing call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	last := d.last
	d.mu.Unlock()

	d.fn(last)
}

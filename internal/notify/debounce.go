package notify

import (
	"sync"
	"time"
)

// Debouncer runs fn once after a quiet period.
//
// Trigger restarts the wait on every call (trailing-edge debounce).
// Schedule only arms the timer when nothing is pending, so the first call of
// a burst anchors the window and the rest are absorbed into the same run.
type Debouncer struct {
	mu      sync.Mutex
	runMu   sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a Debouncer that calls fn after delay.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the delay.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.arm()
}

// Schedule starts the delay unless a run is already pending.
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.timer != nil {
		return
	}
	d.arm()
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs fn immediately if a run is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil && d.timer.Stop()
	if pending {
		d.timer = nil
	}
	d.mu.Unlock()

	if pending {
		d.run()
		return
	}
	// A timer that already fired may still be running fn.
	d.runMu.Lock()
	d.runMu.Unlock()
}

// Stop cancels any pending run and disables further scheduling.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// arm must be called with d.mu held.
func (d *Debouncer) arm() {
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.timer != t {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.run()
	})
	d.timer = t
}

func (d *Debouncer) run() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.fn()
}

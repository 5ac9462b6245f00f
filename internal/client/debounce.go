package client

import (
	"sync"
	"time"
)

// DefaultDebounceInterval is the quiet window applied to search input.
const DefaultDebounceInterval = 300 * time.Millisecond

// Debouncer collapses a burst of triggers into a single trailing call
// after a quiet interval. Every trigger inside the window restarts the
// window and cancels only the pending call, never one already running.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
}

func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	return &Debouncer{interval: interval}
}

// Trigger schedules fn to run after the quiet interval, replacing any
// not-yet-fired schedule.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

// Stop cancels a pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

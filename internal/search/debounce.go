package search

import (
	"sync"
	"time"
)

// DebounceInterval is the quiet period before a pending query runs.
const DebounceInterval = 300 * time.Millisecond

// Debouncer delays a function call until the caller has been quiet for the
// configured interval. Each new call replaces the pending one, so only the
// last call in a burst ever runs.
//
// A dedicated library for this would be overkill; time.AfterFunc carries the
// whole mechanism.
type Debouncer struct {
	interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DebounceInterval
	}
	return &Debouncer{interval: interval}
}

// Do schedules fn after the quiet period, cancelling any pending call.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

// Stop cancels the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

package util

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of events into a single delayed firing.
// It's thread-safe and handles all timer edge cases properly.
//
// The timer stays idle until the first Reset; after that, each Reset
// pushes the firing time back by the full duration.
//
// Example usage:
//
//	debouncer := NewDebouncer(200 * time.Millisecond)
//	defer debouncer.Stop()
//
//	for {
//	    select {
//	    case notes := <-notesChannel:
//	        stash(notes)
//	        debouncer.Reset() // push the flush back while edits keep coming
//	    case <-debouncer.C():
//	        flush() // burst over, deliver the latest state
//	    }
//	}
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	stopped  bool
}

// NewDebouncer creates a new debouncer with the specified duration.
// The returned debouncer does not fire until Reset is called.
func NewDebouncer(duration time.Duration) *Debouncer {
	timer := time.NewTimer(duration)
	if !timer.Stop() {
		<-timer.C
	}

	return &Debouncer{
		duration: duration,
		timer:    timer,
	}
}

// Reset arms the timer to fire after the debouncer's duration.
// If the debouncer has been stopped, this is a no-op.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	// Stop timer and drain channel if necessary
	if !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
	d.timer.Reset(d.duration)
}

// C returns the timer's channel
func (d *Debouncer) C() <-chan time.Time {
	return d.timer.C
}

// Stop stops the debouncer and prevents further resets.
// It's safe to call Stop multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.timer.Stop()
		d.stopped = true
	}
}

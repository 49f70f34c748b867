package cameraservice

import (
	"sync"
	"time"
)

// Debouncer turns a noisy motion boolean into Start/End transitions.
//
// Start is emitted as soon as motion begins. End is held back for offDelay
// after motion stops and is dropped if motion resumes inside that window, so
// flicker at the tail of an episode does not split it in two.
//
// All state, including timer firing, is serialized on mu. Every armed timer
// carries the generation it was armed in; a timer whose generation is stale
// when it finally gets the lock has been cancelled and does nothing.
type Debouncer struct {
	offDelay time.Duration
	emit     func(EventKind)

	mu         sync.Mutex
	lastMotion bool
	pending    *time.Timer
	generation uint64
	closed     bool
}

// NewDebouncer returns an idle debouncer. emit is called with the debouncer
// lock held and must not call back into it.
func NewDebouncer(offDelay time.Duration, emit func(EventKind)) *Debouncer {
	return &Debouncer{offDelay: offDelay, emit: emit}
}

// Signal processes one raw motion value.
func (d *Debouncer) Signal(isMotion bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || isMotion == d.lastMotion {
		return
	}
	d.lastMotion = isMotion

	if isMotion {
		if d.pending != nil {
			// Motion resumed inside the end window: the episode continues.
			d.cancelLocked()
			return
		}
		d.emit(EventStart)
		return
	}

	d.generation++
	gen := d.generation
	d.pending = time.AfterFunc(d.offDelay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.pending == nil || gen != d.generation {
		return
	}
	d.pending = nil
	d.emit(EventEnd)
}

func (d *Debouncer) cancelLocked() {
	if d.pending == nil {
		return
	}
	d.pending.Stop()
	d.pending = nil
	d.generation++
}

// Close cancels any pending End. Signals after Close are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
	d.closed = true
}

// State reports idle, active or ending (end window open).
func (d *Debouncer) State() MotionState {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.lastMotion:
		return MotionActive
	case d.pending != nil:
		return MotionEnding
	default:
		return MotionIdle
	}
}

package cameraservice

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	kind EventKind
	at   time.Time
}

type recorder struct {
	mu   sync.Mutex
	seen []emitted
}

func (r *recorder) emit(k EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, emitted{kind: k, at: time.Now()})
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.seen))
	for _, e := range r.seen {
		out = append(out, e.kind)
	}
	return out
}

func (r *recorder) at(i int) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[i].at
}

const offDelay = 100 * time.Millisecond

func TestDebouncer_StartIsImmediate(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(offDelay, rec.emit)
	defer d.Close()

	d.Signal(true)
	assert.Equal(t, []EventKind{EventStart}, rec.kinds())
	assert.Equal(t, MotionActive, d.State())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []EventKind{EventStart}, rec.kinds(), "no End without a false")
}

func TestDebouncer_EndAfterOffDelay(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(offDelay, rec.emit)
	defer d.Close()

	d.Signal(true)
	falseAt := time.Now()
	d.Signal(false)
	assert.Equal(t, MotionEnding, d.State())

	require.Eventually(t, func() bool { return len(rec.kinds()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []EventKind{EventStart, EventEnd}, rec.kinds())
	assert.GreaterOrEqual(t, rec.at(1).Sub(falseAt), offDelay)
	assert.Equal(t, MotionIdle, d.State())
}

func TestDebouncer_TrueInsideWindowCancelsEnd(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(offDelay, rec.emit)
	defer d.Close()

	d.Signal(true)
	d.Signal(false)
	time.Sleep(50 * time.Millisecond)
	d.Signal(true)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []EventKind{EventStart}, rec.kinds())
	assert.Equal(t, MotionActive, d.State())
}

func TestDebouncer_FalseFirstEmitsNothing(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(offDelay, rec.emit)
	defer d.Close()

	d.Signal(false)
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.kinds())
	assert.Equal(t, MotionIdle, d.State())
}

func TestDebouncer_DuplicatesAreSuppressed(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(time.Hour, rec.emit)
	defer d.Close()

	d.Signal(true)
	d.Signal(true)
	d.Signal(true)
	assert.Equal(t, []EventKind{EventStart}, rec.kinds())

	d.Signal(false)
	d.Signal(false)
	assert.Equal(t, MotionEnding, d.State(), "a repeated false keeps the window open")
	assert.Equal(t, []EventKind{EventStart}, rec.kinds())
}

func TestDebouncer_RepeatedFalseDoesNotRestartWindow(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(offDelay, rec.emit)
	defer d.Close()

	d.Signal(true)
	d.Signal(false)
	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()

	d.Signal(false)
	d.mu.Lock()
	assert.Equal(t, gen, d.generation)
	d.mu.Unlock()

	require.Eventually(t, func() bool { return len(rec.kinds()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_CloseCancelsPendingEnd(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(offDelay, rec.emit)

	d.Signal(true)
	d.Signal(false)
	d.Close()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []EventKind{EventStart}, rec.kinds())

	d.Signal(true)
	assert.Equal(t, []EventKind{EventStart}, rec.kinds(), "signals after Close are ignored")
}

func TestDebouncer_StaleTimerDoesNotFire(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(time.Hour, rec.emit)
	defer d.Close()

	d.Signal(true)
	d.Signal(false)
	d.mu.Lock()
	stale := d.generation
	d.mu.Unlock()
	d.Signal(true)

	// Simulates a timer callback that lost the race with the cancel.
	d.fire(stale)
	assert.Equal(t, []EventKind{EventStart}, rec.kinds())
}

func TestDebouncer_SingleEpisodeForAnySequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		rec := &recorder{}
		d := NewDebouncer(time.Hour, rec.emit)

		sawTrue := false
		for j := 0; j < 1+rng.Intn(30); j++ {
			v := rng.Intn(2) == 1
			sawTrue = sawTrue || v
			d.Signal(v)
		}
		d.Close()

		// With an end window that never closes, every sequence is one
		// episode at most.
		if sawTrue {
			assert.Equal(t, []EventKind{EventStart}, rec.kinds())
		} else {
			assert.Empty(t, rec.kinds())
		}
	}
}

func TestDebouncer_TransitionsAlternate(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(time.Millisecond, rec.emit)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		d.Signal(rng.Intn(2) == 1)
		if rng.Intn(4) == 0 {
			time.Sleep(time.Duration(rng.Intn(1500)) * time.Microsecond)
		}
	}
	d.Signal(true)
	d.Signal(false)

	require.Eventually(t, func() bool { return d.State() == MotionIdle }, time.Second, time.Millisecond)
	d.Close()

	kinds := rec.kinds()
	require.NotEmpty(t, kinds)
	for i, k := range kinds {
		if i%2 == 0 {
			assert.Equal(t, EventStart, k, "position %d", i)
		} else {
			assert.Equal(t, EventEnd, k, "position %d", i)
		}
	}
	assert.Equal(t, EventEnd, kinds[len(kinds)-1])
}

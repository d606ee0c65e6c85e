// Package repeater provides cancelable periodic scheduling.
package repeater

import (
	"sync"
	"time"
)

// Repeater runs a callback on a schedule until stopped.
type Repeater interface {
	// Start begins invoking fn. Idempotent while running.
	Start(fn func())
	// Stop cancels the pending tick. A callback already executing is not interrupted.
	Stop()
	// Reset reschedules the next tick from now.
	Reset()
}

// Interval invokes its callback every fixed duration.
// The next tick is scheduled after the callback returns, so callbacks never overlap.
type Interval struct {
	interval time.Duration

	mu      sync.Mutex
	fn      func()
	timer   *time.Timer
	running bool
	gen     uint64 // bumped on Stop/Reset to invalidate stale timers
}

// NewInterval creates a repeater that fires every d.
func NewInterval(d time.Duration) *Interval {
	return &Interval{interval: d}
}

// Start begins ticking. Calling Start on a running repeater has no effect.
func (r *Interval) Start(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running || fn == nil || r.interval <= 0 {
		return
	}
	r.fn = fn
	r.running = true
	r.gen++
	r.schedule(r.gen)
}

// Stop cancels any scheduled tick.
func (r *Interval) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Reset pushes the next tick one full interval into the future.
func (r *Interval) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	r.schedule(r.gen)
}

// Running reports whether the repeater is active.
func (r *Interval) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// schedule must be called with mu held.
func (r *Interval) schedule(gen uint64) {
	r.timer = time.AfterFunc(r.interval, func() { r.tick(gen) })
}

func (r *Interval) tick(gen uint64) {
	r.mu.Lock()
	if !r.running || gen != r.gen {
		r.mu.Unlock()
		return
	}
	fn := r.fn
	r.mu.Unlock()

	fn()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running && gen == r.gen {
		r.schedule(gen)
	}
}

var _ Repeater = (*Interval)(nil)

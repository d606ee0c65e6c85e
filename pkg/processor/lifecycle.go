package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStoppedBeforeStart is returned by OnRunning when Stop was called on a
// processor that was never started.
var ErrStoppedBeforeStart = errors.New("processor: stopped before start")

// State is a processor lifecycle state. Transitions only move forward.
type State int32

const (
	StateNew State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// lifecycle tracks New → Running → Terminated. A running processor that is
// stopping rejects events but stays Running until its dispatches settle.
type lifecycle struct {
	state              atomic.Int32
	stopping           atomic.Bool
	stoppedBeforeStart atomic.Bool

	running    chan struct{}
	terminated chan struct{}
	once       sync.Once
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		running:    make(chan struct{}),
		terminated: make(chan struct{}),
	}
}

func (l *lifecycle) State() State {
	return State(l.state.Load())
}

// start moves New → Running. It returns false if the processor was not New.
func (l *lifecycle) start() bool {
	if !l.state.CompareAndSwap(int32(StateNew), int32(StateRunning)) {
		return false
	}
	close(l.running)
	return true
}

// beginStop returns the state Stop was called in. Only the first call on a
// Running processor returns StateRunning; the caller must then finish.
func (l *lifecycle) beginStop() State {
	if l.state.CompareAndSwap(int32(StateNew), int32(StateTerminated)) {
		l.stoppedBeforeStart.Store(true)
		l.stopping.Store(true)
		l.finish()
		return StateNew
	}
	if l.State() == StateRunning && l.stopping.CompareAndSwap(false, true) {
		return StateRunning
	}
	return StateTerminated
}

func (l *lifecycle) finish() {
	l.once.Do(func() {
		l.state.Store(int32(StateTerminated))
		close(l.terminated)
	})
}

func (l *lifecycle) accepting() bool {
	return l.State() == StateRunning && !l.stopping.Load()
}

// OnRunning blocks until the processor is Running. It fails with
// ErrStoppedBeforeStart if it was stopped first.
func (l *lifecycle) OnRunning(ctx context.Context) error {
	select {
	case <-l.running:
		return nil
	case <-l.terminated:
		if l.stoppedBeforeStart.Load() {
			return ErrStoppedBeforeStart
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTerminated blocks until the processor is Terminated and every dispatch it
// started has settled.
func (l *lifecycle) OnTerminated(ctx context.Context) error {
	select {
	case <-l.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the processor is Terminated.
func (l *lifecycle) Done() <-chan struct{} {
	return l.terminated
}

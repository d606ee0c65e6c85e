package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"flagkit/pkg/dispatcher"
	"flagkit/pkg/event"
	"flagkit/pkg/store"
)

// ErrUnavailable is returned by a failing Dispatcher.
var ErrUnavailable = errors.New("collector unavailable")

// Dispatcher records every request. The first FailFirst calls fail with Err,
// or with ErrUnavailable when Err is nil. A negative FailFirst fails forever.
type Dispatcher struct {
	mu        sync.Mutex
	failFirst int
	err       error
	calls     []event.LogEvent
	block     chan struct{}
}

// NewDispatcher creates a dispatcher that fails its first failFirst calls.
func NewDispatcher(failFirst int) *Dispatcher {
	return &Dispatcher{failFirst: failFirst}
}

// FailWith sets the error returned by failing calls.
func (d *Dispatcher) FailWith(err error) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
	return d
}

// SetFailures changes how many upcoming calls fail.
func (d *Dispatcher) SetFailures(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFirst = n
}

// Block makes subsequent calls wait until Release.
func (d *Dispatcher) Block() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = make(chan struct{})
}

// Release unblocks pending and future calls.
func (d *Dispatcher) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.block != nil {
		close(d.block)
		d.block = nil
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req event.LogEvent) (dispatcher.Response, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	block := d.block
	fail := d.failFirst != 0
	if d.failFirst > 0 {
		d.failFirst--
	}
	err := d.err
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return dispatcher.Response{}, ctx.Err()
		}
	}
	if fail {
		if err == nil {
			err = ErrUnavailable
		}
		return dispatcher.Response{}, err
	}
	return dispatcher.Response{StatusCode: http.StatusNoContent}, nil
}

// Calls returns how many times Dispatch was called.
func (d *Dispatcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// Requests returns a copy of every dispatched request.
func (d *Dispatcher) Requests() []event.LogEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]event.LogEvent(nil), d.calls...)
}

// Events returns how many events were dispatched across all calls.
func (d *Dispatcher) Events() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int
	for _, c := range d.calls {
		n += c.Params.Len()
	}
	return n
}

// Pending wraps a store.Pending and counts writes and removals.
type Pending struct {
	store.Pending

	mu      sync.Mutex
	sets    int
	removes int
	setErr  error
}

// NewPending creates a counting pending store backed by memory.
func NewPending() *Pending {
	return &Pending{Pending: store.NewTypedPending(store.NewMemory[store.PendingEntry](100))}
}

// FailSets makes Set return err.
func (p *Pending) FailSets(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setErr = err
}

func (p *Pending) Set(ctx context.Context, entry store.PendingEntry) error {
	p.mu.Lock()
	p.sets++
	err := p.setErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.Pending.Set(ctx, entry)
}

func (p *Pending) Remove(ctx context.Context, id string) error {
	p.mu.Lock()
	p.removes++
	p.mu.Unlock()
	return p.Pending.Remove(ctx, id)
}

// Sets returns how many times Set was called.
func (p *Pending) Sets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

// Removes returns how many times Remove was called.
func (p *Pending) Removes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removes
}

// Len returns the number of stored entries.
func (p *Pending) Len() int {
	entries, err := p.List(context.Background())
	if err != nil {
		return -1
	}
	return len(entries)
}

var (
	_ dispatcher.Dispatcher = (*Dispatcher)(nil)
	_ store.Pending         = (*Pending)(nil)
)

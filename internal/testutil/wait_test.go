package testutil

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"flagkit/pkg/event"
	"flagkit/pkg/store"
)

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	counter := 0
	result := WaitFor(t, func() bool {
		counter++
		return counter >= 3
	}, WithTimeout(time.Second), WithInterval(time.Millisecond))

	if !result {
		t.Error("expected WaitFor to return true for eventual success")
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	result := WaitFor(t, func() bool {
		return false
	}, WithTimeout(30*time.Millisecond))

	if result {
		t.Error("expected WaitFor to return false on timeout")
	}
}

func TestMustWaitForCount(t *testing.T) {
	t.Parallel()
	var counter atomic.Int64
	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(2 * time.Millisecond)
			counter.Add(1)
		}
	}()

	MustWaitForCount(t, func() int { return int(counter.Load()) }, 5, WithTimeout(time.Second))
}

func TestMustTerminate(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	close(done)

	MustTerminate(t, func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, WithTimeout(time.Second))
}

func TestResolveOptions(t *testing.T) {
	t.Parallel()
	o := resolve(nil)
	if o.Timeout != 5*time.Second || o.Interval != 5*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", o)
	}

	o = resolve([]WaitOption{WithTimeout(time.Minute), WithInterval(time.Second)})
	if o.Timeout != time.Minute || o.Interval != time.Second {
		t.Errorf("options not applied: %+v", o)
	}
}

func TestDispatcher_FailFirst(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(2)
	req := event.LogEvent{URL: "https://collector.test"}

	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), req); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	if _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("expected success after failures, got %v", err)
	}
	if d.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", d.Calls())
	}
}

func TestDispatcher_FailForever(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(-1)
	for i := 0; i < 10; i++ {
		if _, err := d.Dispatch(context.Background(), event.LogEvent{}); err == nil {
			t.Fatal("expected every call to fail")
		}
	}
}

func TestPending_Counts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewPending()

	_ = p.Set(ctx, store.PendingEntry{ID: "a", InsertedAt: time.Now()})
	if p.Sets() != 1 || p.Len() != 1 {
		t.Fatalf("expected one stored entry, got sets=%d len=%d", p.Sets(), p.Len())
	}
	_ = p.Remove(ctx, "a")
	if p.Removes() != 1 || p.Len() != 0 {
		t.Errorf("expected entry removed, got removes=%d len=%d", p.Removes(), p.Len())
	}

	p.FailSets(errors.New("disk full"))
	if err := p.Set(ctx, store.PendingEntry{ID: "b"}); err == nil {
		t.Error("expected Set to fail")
	}
	if p.Len() != 0 {
		t.Error("failed Set must not store the entry")
	}
}

package processor

import (
	"testing"
)

func TestListeners_OrderAndUnsubscribe(t *testing.T) {
	t.Parallel()
	l := NewListeners[int](discardLogger())

	var calls []string
	first := l.Subscribe(func(v int) { calls = append(calls, "first") })
	l.Subscribe(func(v int) { calls = append(calls, "second") })

	l.Notify(1)
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("expected subscription order, got %v", calls)
	}

	if !l.Unsubscribe(first) {
		t.Error("expected unsubscribe to succeed")
	}
	if l.Unsubscribe(first) {
		t.Error("expected second unsubscribe to report false")
	}

	calls = nil
	l.Notify(2)
	if len(calls) != 1 || calls[0] != "second" {
		t.Errorf("expected only second listener, got %v", calls)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 listener, got %d", l.Len())
	}
}

func TestListeners_PanicIsContained(t *testing.T) {
	t.Parallel()
	l := NewListeners[string](discardLogger())

	var got string
	l.Subscribe(func(string) { panic("boom") })
	l.Subscribe(func(v string) { got = v })

	l.Notify("delivered")
	if got != "delivered" {
		t.Errorf("expected later listener to run after a panic, got %q", got)
	}
}

func TestListeners_IDsAreStable(t *testing.T) {
	t.Parallel()
	l := NewListeners[int](nil)
	a := l.Subscribe(func(int) {})
	l.Unsubscribe(a)
	b := l.Subscribe(func(int) {})
	if a == b {
		t.Errorf("expected ids not to be reused, got %d twice", a)
	}
}

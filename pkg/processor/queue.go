package processor

import (
	"sync"

	"flagkit/pkg/event"
)

// queue is the ordered in-memory buffer in front of the flush cycle.
// When full, the oldest event is evicted to admit the newest.
type queue struct {
	mu      sync.Mutex
	events  []event.Event
	maxSize int
	closed  bool
}

func newQueue(maxSize int) *queue {
	return &queue{maxSize: maxSize}
}

// add appends e and returns the resulting length and whether an event was
// evicted. ok is false once the queue is closed.
func (q *queue) add(e event.Event) (size int, evicted bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return len(q.events), false, false
	}
	if len(q.events) >= q.maxSize {
		q.events[0] = event.Event{}
		q.events = q.events[1:]
		evicted = true
	}
	q.events = append(q.events, e)
	return len(q.events), evicted, true
}

// drain removes and returns every buffered event.
func (q *queue) drain() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeLocked()
}

// close rejects further adds and returns what was still buffered.
func (q *queue) close() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return q.takeLocked()
}

func (q *queue) takeLocked() []event.Event {
	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = make([]event.Event, 0, len(out))
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// chunk splits events into runs of at most size, preserving order.
func chunk(events []event.Event, size int) [][]event.Event {
	if size <= 0 || len(events) <= size {
		return [][]event.Event{events}
	}
	out := make([][]event.Event, 0, (len(events)+size-1)/size)
	for len(events) > size {
		out = append(out, events[:size:size])
		events = events[size:]
	}
	return append(out, events)
}

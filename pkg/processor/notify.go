package processor

import (
	"log/slog"
	"sort"
	"sync"
)

// Listeners is a registry of callbacks keyed by a stable subscription id.
type Listeners[T any] struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(T)
	logger *slog.Logger
}

// NewListeners creates an empty registry.
func NewListeners[T any](logger *slog.Logger) *Listeners[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listeners[T]{
		fns:    make(map[int]func(T)),
		logger: logger,
	}
}

// Subscribe registers fn and returns its id.
func (l *Listeners[T]) Subscribe(fn func(T)) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.fns[l.nextID] = fn
	return l.nextID
}

// Unsubscribe removes the listener with the given id.
func (l *Listeners[T]) Unsubscribe(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fns[id]; !ok {
		return false
	}
	delete(l.fns, id)
	return true
}

// Len returns the number of registered listeners.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}

// Notify calls every listener in subscription order on the calling goroutine.
// A panicking listener is logged and does not affect the others.
func (l *Listeners[T]) Notify(v T) {
	l.mu.RLock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = l.fns[id]
	}
	l.mu.RUnlock()

	for i, fn := range fns {
		l.call(ids[i], fn, v)
	}
}

func (l *Listeners[T]) call(id int, fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Listener panicked", "listener", id, "panic", r)
		}
	}()
	fn(v)
}

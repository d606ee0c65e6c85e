package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryCapacity bounds a Memory store created with a non-positive capacity.
const DefaultMemoryCapacity = 1000

// Memory is a bounded in-process store. When full, the least recently
// written or read entry is evicted.
type Memory[V any] struct {
	cache *lru.Cache[string, V]
}

// NewMemory creates a memory store holding at most capacity entries.
func NewMemory[V any](capacity int) *Memory[V] {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, V](capacity)
	return &Memory[V]{cache: cache}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

func (m *Memory[V]) Set(_ context.Context, key string, value V) error {
	m.cache.Add(key, value)
	return nil
}

func (m *Memory[V]) Contains(_ context.Context, key string) (bool, error) {
	return m.cache.Contains(key), nil
}

func (m *Memory[V]) Remove(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Keys returns keys from oldest to newest.
func (m *Memory[V]) Keys(_ context.Context) ([]string, error) {
	return m.cache.Keys(), nil
}

// Len returns the number of stored entries.
func (m *Memory[V]) Len() int {
	return m.cache.Len()
}

var _ Store[string] = (*Memory[string])(nil)

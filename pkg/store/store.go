// Package store provides the key-value boundary used to persist undelivered batches,
// with in-memory, file and Redis implementations.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store is a key-value map over string keys.
// Implementations must be safe for concurrent use.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V) error
	Contains(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

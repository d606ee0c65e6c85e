package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"flagkit/pkg/event"

	json "github.com/goccy/go-json"
)

// KeyPrefix namespaces pending-batch keys inside a shared store.
const KeyPrefix = "flagkit_pending_"

// PendingEntry is a batch whose delivery was abandoned, awaiting re-delivery.
type PendingEntry struct {
	ID         string         `json:"id"`
	Event      event.LogEvent `json:"event"`
	InsertedAt time.Time      `json:"insertedAt"`
}

// Pending is the view of a store the processor uses for undelivered batches.
type Pending interface {
	Set(ctx context.Context, entry PendingEntry) error
	Get(ctx context.Context, id string) (PendingEntry, error)
	Remove(ctx context.Context, id string) error
	// List returns all entries, oldest first.
	List(ctx context.Context) ([]PendingEntry, error)
}

// Codec converts entries to and from a string-valued store.
type Codec struct {
	Encode func(PendingEntry) (string, error)
	Decode func(string) (PendingEntry, error)
}

// JSONCodec encodes entries as JSON.
var JSONCodec = Codec{
	Encode: func(e PendingEntry) (string, error) {
		b, err := json.Marshal(e)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
	Decode: func(s string) (PendingEntry, error) {
		var e PendingEntry
		err := json.Unmarshal([]byte(s), &e)
		return e, err
	},
}

// TypedPending stores entries directly in a store holding PendingEntry values.
type TypedPending struct {
	store Store[PendingEntry]
}

// NewTypedPending wraps a store of entries.
func NewTypedPending(s Store[PendingEntry]) *TypedPending {
	return &TypedPending{store: s}
}

func (p *TypedPending) Set(ctx context.Context, entry PendingEntry) error {
	return p.store.Set(ctx, KeyPrefix+entry.ID, entry)
}

func (p *TypedPending) Get(ctx context.Context, id string) (PendingEntry, error) {
	return p.store.Get(ctx, KeyPrefix+id)
}

func (p *TypedPending) Remove(ctx context.Context, id string) error {
	return p.store.Remove(ctx, KeyPrefix+id)
}

func (p *TypedPending) List(ctx context.Context) ([]PendingEntry, error) {
	keys, err := p.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]PendingEntry, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}
		entry, err := p.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

// EncodedPending stores entries in a string-valued store through a Codec.
type EncodedPending struct {
	store  Store[string]
	codec  Codec
	logger *slog.Logger
}

// NewEncodedPending wraps a string store. A zero codec defaults to JSONCodec.
func NewEncodedPending(s Store[string], codec Codec, logger *slog.Logger) *EncodedPending {
	if codec.Encode == nil || codec.Decode == nil {
		codec = JSONCodec
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EncodedPending{
		store:  s,
		codec:  codec,
		logger: logger.With("component", "pending-store"),
	}
}

func (p *EncodedPending) Set(ctx context.Context, entry PendingEntry) error {
	raw, err := p.codec.Encode(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.ID, err)
	}
	return p.store.Set(ctx, KeyPrefix+entry.ID, raw)
}

func (p *EncodedPending) Get(ctx context.Context, id string) (PendingEntry, error) {
	raw, err := p.store.Get(ctx, KeyPrefix+id)
	if err != nil {
		return PendingEntry{}, err
	}
	entry, err := p.codec.Decode(raw)
	if err != nil {
		return PendingEntry{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return entry, nil
}

func (p *EncodedPending) Remove(ctx context.Context, id string) error {
	return p.store.Remove(ctx, KeyPrefix+id)
}

// List skips and removes entries that cannot be decoded, since they can never
// be delivered.
func (p *EncodedPending) List(ctx context.Context) ([]PendingEntry, error) {
	keys, err := p.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]PendingEntry, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}
		raw, err := p.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entry, err := p.codec.Decode(raw)
		if err != nil {
			p.logger.Warn("discarding undecodable entry", "key", key, "error", err)
			_ = p.store.Remove(ctx, key)
			continue
		}
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []PendingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].InsertedAt.Before(entries[j].InsertedAt)
	})
}

var (
	_ Pending = (*TypedPending)(nil)
	_ Pending = (*EncodedPending)(nil)
)

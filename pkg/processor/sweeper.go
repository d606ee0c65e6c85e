package processor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"flagkit/pkg/store"
)

// sweeper redelivers batches persisted after their retries ran out.
// One sweep runs at a time, so a pending entry is never dispatched twice
// concurrently.
type sweeper struct {
	pending  store.Pending
	retry    *retrier
	counters *counters
	metrics  MetricsRecorder
	logger   *slog.Logger
	shutdown <-chan struct{}

	running atomic.Bool
}

// tryBegin claims the sweep slot. It returns false if a sweep is in progress.
func (s *sweeper) tryBegin() bool {
	return s.running.CompareAndSwap(false, true)
}

// sweep delivers every pending entry, oldest first. The caller must have won
// tryBegin.
func (s *sweeper) sweep(ctx context.Context) {
	defer s.running.Store(false)

	entries, err := s.pending.List(ctx)
	if err != nil {
		s.logger.Warn("Failed to list pending batches", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	s.logger.Info("Redelivering pending batches", "count", len(entries))
	var delivered int
	for i, entry := range entries {
		select {
		case <-s.shutdown:
			s.logger.Info("Sweep interrupted by shutdown", "delivered", delivered, "remaining", len(entries)-i)
			return
		default:
		}

		s.counters.swept.Add(1)
		s.metrics.RecordBatchSwept(ctx)
		if s.retry.deliver(ctx, entry.Event, entry.ID) == outcomeDelivered {
			delivered++
		}
	}
	s.logger.Info("Sweep complete", "delivered", delivered, "pending", len(entries)-delivered)
}

package processor

import (
	"context"
	"log/slog"
	"time"

	"flagkit/pkg/backoff"
	"flagkit/pkg/dispatcher"
	"flagkit/pkg/event"
	"flagkit/pkg/store"

	"github.com/google/uuid"
)

// outcome is how a delivery run ended.
type outcome int

const (
	outcomeDelivered outcome = iota
	outcomePersisted // handed to the store
	outcomeRetained  // came from the store and stays there
	outcomeDropped
)

// retrier delivers one batch with bounded exponential backoff. On exhaustion
// the batch is persisted when a store is configured and dropped otherwise.
type retrier struct {
	dispatcher dispatcher.Dispatcher
	pending    store.Pending
	backoff    *backoff.Exponential
	maxRetries int
	listeners  *Listeners[event.LogEvent]
	counters   *counters
	metrics    MetricsRecorder
	logger     *slog.Logger

	// shutdown aborts backoff waits. Dispatch calls already running are not
	// interrupted.
	shutdown <-chan struct{}
}

// deliver runs the retry loop for req. pendingID is non-empty when req was
// read back from the store.
func (r *retrier) deliver(ctx context.Context, req event.LogEvent, pendingID string) outcome {
	events := req.Params.Len()
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.counters.retries.Add(1)
			if !r.wait(r.backoff.Delay(attempt - 1)) {
				r.logger.Debug("Retry wait aborted by shutdown", "attempt", attempt, "events", events)
				break
			}
		}

		r.listeners.Notify(req)
		r.counters.attempts.Add(1)
		r.metrics.RecordDispatchAttempt(ctx)

		_, lastErr = r.dispatcher.Dispatch(ctx, req)
		if lastErr == nil {
			r.counters.delivered.Add(1)
			r.metrics.RecordBatchDelivered(ctx, time.Since(start).Seconds(), events)
			if pendingID != "" {
				r.remove(ctx, pendingID)
			}
			return outcomeDelivered
		}

		if dispatcher.IsPermanent(lastErr) {
			r.logger.Warn("Batch rejected by collector, dropping",
				"events", events,
				"error", lastErr,
			)
			r.drop(ctx, DropPermanent, events)
			if pendingID != "" {
				r.remove(ctx, pendingID)
			}
			return outcomeDropped
		}

		r.logger.Debug("Dispatch attempt failed", "attempt", attempt, "events", events, "error", lastErr)
	}

	if pendingID != "" {
		r.logger.Info("Redelivery failed, batch stays pending", "id", pendingID, "error", lastErr)
		return outcomeRetained
	}
	return r.persist(ctx, req, lastErr)
}

func (r *retrier) persist(ctx context.Context, req event.LogEvent, cause error) outcome {
	events := req.Params.Len()
	if r.pending == nil {
		r.logger.Warn("Delivery failed, dropping batch", "events", events, "error", cause)
		r.drop(ctx, DropExhausted, events)
		return outcomeDropped
	}

	entry := store.PendingEntry{
		ID:         uuid.NewString(),
		Event:      req,
		InsertedAt: time.Now().UTC(),
	}
	if err := r.pending.Set(ctx, entry); err != nil {
		r.logger.Error("Failed to persist batch, dropping",
			"events", events,
			"error", err,
			"cause", cause,
		)
		r.drop(ctx, DropStore, events)
		return outcomeDropped
	}

	r.counters.persisted.Add(1)
	r.metrics.RecordBatchPersisted(ctx)
	r.logger.Info("Delivery failed, batch persisted", "id", entry.ID, "events", events, "error", cause)
	return outcomePersisted
}

func (r *retrier) remove(ctx context.Context, id string) {
	if err := r.pending.Remove(ctx, id); err != nil {
		r.logger.Warn("Failed to remove pending batch", "id", id, "error", err)
	}
}

func (r *retrier) drop(ctx context.Context, reason string, events int) {
	r.counters.failed.Add(1)
	r.metrics.RecordEventsDropped(ctx, reason, events)
}

// wait sleeps for d and returns false if shutdown fired first.
func (r *retrier) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-r.shutdown:
		return false
	}
}

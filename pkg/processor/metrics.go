package processor

import (
	"context"
	"sync/atomic"
)

// Drop reasons reported to MetricsRecorder.
const (
	DropEvicted   = "evicted"
	DropRejected  = "rejected"
	DropPermanent = "permanent"
	DropExhausted = "exhausted"
	DropStore     = "store_error"
)

// MetricsRecorder is an optional interface for recording processor metrics.
type MetricsRecorder interface {
	RecordEventProcessed(ctx context.Context)
	RecordEventsDropped(ctx context.Context, reason string, count int)
	RecordDispatchAttempt(ctx context.Context)
	RecordBatchDelivered(ctx context.Context, durationSeconds float64, events int)
	RecordBatchPersisted(ctx context.Context)
	RecordBatchSwept(ctx context.Context)
	RecordQueueSize(ctx context.Context, size int64)
	RecordInflight(ctx context.Context, delta int64)
}

// Stats is a snapshot of processor counters.
type Stats struct {
	QueueDepth int
	Inflight   int64
	Processed  int64
	Rejected   int64
	Evicted    int64
	Attempts   int64
	Retries    int64
	Delivered  int64
	Failed     int64
	Persisted  int64
	Swept      int64
}

type counters struct {
	inflight  atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
	evicted   atomic.Int64
	attempts  atomic.Int64
	retries   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	persisted atomic.Int64
	swept     atomic.Int64
}

func (c *counters) snapshot(depth int) Stats {
	return Stats{
		QueueDepth: depth,
		Inflight:   c.inflight.Load(),
		Processed:  c.processed.Load(),
		Rejected:   c.rejected.Load(),
		Evicted:    c.evicted.Load(),
		Attempts:   c.attempts.Load(),
		Retries:    c.retries.Load(),
		Delivered:  c.delivered.Load(),
		Failed:     c.failed.Load(),
		Persisted:  c.persisted.Load(),
		Swept:      c.swept.Load(),
	}
}

// nopMetrics is used when no recorder is configured.
type nopMetrics struct{}

func (nopMetrics) RecordEventProcessed(context.Context) {}
func (nopMetrics) RecordEventsDropped(context.Context, string, int) {}
func (nopMetrics) RecordDispatchAttempt(context.Context) {}
func (nopMetrics) RecordBatchDelivered(context.Context, float64, int) {}
func (nopMetrics) RecordBatchPersisted(context.Context) {}
func (nopMetrics) RecordBatchSwept(context.Context) {}
func (nopMetrics) RecordQueueSize(context.Context, int64) {}
func (nopMetrics) RecordInflight(context.Context, int64) {}

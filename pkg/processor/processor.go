// Package processor batches flag events and delivers them to a collector,
// retrying with backoff and persisting batches that cannot be delivered.
package processor

import (
	"context"
	"log/slog"
	"sync"

	"flagkit/pkg/event"
	"flagkit/pkg/repeater"
)

// Processor is the contract shared by BatchProcessor and ForwardingProcessor.
type Processor interface {
	Start()
	Process(e event.Event)
	Stop()
	OnRunning(ctx context.Context) error
	OnTerminated(ctx context.Context) error
	OnDispatch(fn func(event.LogEvent)) func()
	State() State
}

// BatchProcessor buffers events and flushes them as context-grouped batches
// when the batch size is reached, the flush interval elapses, or it is stopped.
//
// A single run loop owns flushing, sweeping and shutdown. Process only appends
// to the queue and signals the loop, so producers never block.
type BatchProcessor struct {
	*lifecycle

	cfg       Config
	logger    *slog.Logger
	metrics   MetricsRecorder
	queue     *queue
	listeners *Listeners[event.LogEvent]
	retry     *retrier
	sweeper   *sweeper
	counters  counters

	flushTimer repeater.Repeater
	sweepTimer repeater.Repeater

	flushCh  chan struct{}
	tickCh   chan struct{}
	sweepCh  chan struct{}
	stopCh   chan struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewBatch creates a processor in the New state.
func NewBatch(cfg Config) *BatchProcessor {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "event-processor")

	var metrics MetricsRecorder = nopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}

	p := &BatchProcessor{
		lifecycle:  newLifecycle(),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		queue:      newQueue(cfg.MaxQueueSize),
		listeners:  NewListeners[event.LogEvent](logger),
		flushTimer: repeater.NewInterval(cfg.FlushInterval),
		flushCh:    make(chan struct{}, 1),
		tickCh:     make(chan struct{}, 1),
		sweepCh:    make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		shutdown:   make(chan struct{}),
	}

	p.retry = &retrier{
		dispatcher: cfg.Dispatcher,
		pending:    cfg.Store,
		backoff:    cfg.Retry.backoff(),
		maxRetries: cfg.Retry.MaxRetries,
		listeners:  p.listeners,
		counters:   &p.counters,
		metrics:    metrics,
		logger:     logger,
		shutdown:   p.shutdown,
	}

	if cfg.sweepEnabled() {
		p.sweeper = &sweeper{
			pending:  cfg.Store,
			retry:    p.retry,
			counters: &p.counters,
			metrics:  metrics,
			logger:   logger.With("task", "sweep"),
			shutdown: p.shutdown,
		}
		p.sweepTimer = repeater.NewInterval(cfg.FailedEventRetryInterval)
	}

	return p
}

// Start moves the processor to Running and starts its timers.
// Calling Start more than once has no further effect.
func (p *BatchProcessor) Start() {
	if !p.start() {
		return
	}

	go p.run()
	p.flushTimer.Start(func() { signal(p.tickCh) })
	if p.sweeper != nil {
		p.sweepTimer.Start(func() { signal(p.sweepCh) })
		signal(p.sweepCh)
	}

	p.logger.Info("Event processor started",
		"batch_size", p.cfg.BatchSize,
		"flush_interval", p.cfg.FlushInterval,
		"max_queue_size", p.cfg.MaxQueueSize,
		"max_retries", p.cfg.Retry.MaxRetries,
		"sweep", p.sweeper != nil,
	)
}

// Process enqueues e for delivery. Events are ignored, with a warning, unless
// the processor is Running.
func (p *BatchProcessor) Process(e event.Event) {
	ctx := context.Background()
	if !p.accepting() {
		p.reject(ctx, e)
		return
	}

	size, evicted, ok := p.queue.add(e)
	if !ok {
		p.reject(ctx, e)
		return
	}

	p.counters.processed.Add(1)
	p.metrics.RecordEventProcessed(ctx)
	p.metrics.RecordQueueSize(ctx, int64(size))
	if evicted {
		p.counters.evicted.Add(1)
		p.metrics.RecordEventsDropped(ctx, DropEvicted, 1)
		p.logger.Warn("Queue full, evicted oldest event", "max_queue_size", p.cfg.MaxQueueSize)
	}
	if size >= p.cfg.BatchSize {
		signal(p.flushCh)
	}
}

func (p *BatchProcessor) reject(ctx context.Context, e event.Event) {
	p.counters.rejected.Add(1)
	p.metrics.RecordEventsDropped(ctx, DropRejected, 1)
	p.logger.Warn("Event ignored, processor not running",
		"state", p.State().String(),
		"type", e.Type,
		"uuid", e.UUID,
	)
}

// Flush asks the run loop to flush buffered events now.
func (p *BatchProcessor) Flush() {
	if p.accepting() {
		signal(p.flushCh)
	}
}

// Stop flushes buffered events, stops the timers and moves the processor to
// Terminated once every dispatch has settled. It does not block; use
// OnTerminated or Close to wait.
func (p *BatchProcessor) Stop() {
	switch p.beginStop() {
	case StateNew:
		p.logger.Info("Event processor stopped before start")
	case StateRunning:
		close(p.stopCh)
	}
}

// Close stops the processor and waits for it to terminate.
func (p *BatchProcessor) Close(ctx context.Context) error {
	p.Stop()
	if err := p.OnTerminated(ctx); err != nil {
		p.logger.Warn("Event processor shutdown timed out", "inflight", p.counters.inflight.Load())
		return err
	}
	return nil
}

// OnDispatch registers fn to be called with each batch before every dispatch
// attempt. The returned function unsubscribes it.
func (p *BatchProcessor) OnDispatch(fn func(event.LogEvent)) func() {
	id := p.listeners.Subscribe(fn)
	return func() { p.listeners.Unsubscribe(id) }
}

// Stats returns current processor counters.
func (p *BatchProcessor) Stats() Stats {
	return p.counters.snapshot(p.queue.len())
}

func (p *BatchProcessor) run() {
	for {
		select {
		case <-p.flushCh:
			p.flush(p.queue.drain())
			p.flushTimer.Reset()
		case <-p.tickCh:
			p.flush(p.queue.drain())
		case <-p.sweepCh:
			p.startSweep()
		case <-p.stopCh:
			p.terminate()
			return
		}
	}
}

func (p *BatchProcessor) terminate() {
	p.flushTimer.Stop()
	if p.sweepTimer != nil {
		p.sweepTimer.Stop()
	}

	remaining := p.queue.close()
	p.logger.Info("Event processor stopping", "buffered", len(remaining), "inflight", p.counters.inflight.Load())
	p.flush(remaining)
	close(p.shutdown)

	p.wg.Wait()
	p.finish()

	s := p.Stats()
	p.logger.Info("Event processor terminated",
		"processed", s.Processed,
		"delivered", s.Delivered,
		"persisted", s.Persisted,
		"failed", s.Failed,
		"evicted", s.Evicted,
	)
}

// flush hands events to the retrier as one batch per context, split to the
// batch size. Only the run loop calls flush.
func (p *BatchProcessor) flush(events []event.Event) {
	if len(events) == 0 {
		return
	}
	p.metrics.RecordQueueSize(context.Background(), int64(p.queue.len()))

	for _, group := range event.Partition(events) {
		for _, batch := range chunk(group, p.cfg.BatchSize) {
			req := event.NewLogEvent(p.cfg.Endpoint, batch)
			p.track(func(ctx context.Context) {
				p.retry.deliver(ctx, req, "")
			})
		}
	}
}

func (p *BatchProcessor) startSweep() {
	if !p.sweeper.tryBegin() {
		p.logger.Debug("Sweep already running, skipping tick")
		return
	}
	p.track(p.sweeper.sweep)
}

// track runs fn on its own goroutine and counts it as in flight until it
// returns.
func (p *BatchProcessor) track(fn func(ctx context.Context)) {
	ctx := context.Background()
	p.wg.Add(1)
	p.counters.inflight.Add(1)
	p.metrics.RecordInflight(ctx, 1)

	go func() {
		defer func() {
			p.counters.inflight.Add(-1)
			p.metrics.RecordInflight(ctx, -1)
			p.wg.Done()
		}()
		fn(ctx)
	}()
}

// signal does a non-blocking send on a 1-buffered channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var _ Processor = (*BatchProcessor)(nil)

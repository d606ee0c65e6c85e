package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"flagkit/pkg/dispatcher"
	"flagkit/pkg/event"
)

// ForwardingConfig configures a ForwardingProcessor.
type ForwardingConfig struct {
	Dispatcher dispatcher.Dispatcher
	Endpoint   string
	Logger     *slog.Logger
	Metrics    MetricsRecorder
}

// ForwardingProcessor dispatches every event on its own, immediately, with no
// batching, retry or store.
type ForwardingProcessor struct {
	*lifecycle

	dispatcher dispatcher.Dispatcher
	endpoint   string
	logger     *slog.Logger
	metrics    MetricsRecorder
	listeners  *Listeners[event.LogEvent]
	counters   counters

	// mu orders wg.Add in Process against wg.Wait in Stop.
	mu sync.RWMutex
	wg sync.WaitGroup
}

// NewForwarding creates a forwarding processor in the New state.
func NewForwarding(cfg ForwardingConfig) *ForwardingProcessor {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatcher.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var metrics MetricsRecorder = nopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}

	logger := cfg.Logger.With("component", "forwarding-processor")
	return &ForwardingProcessor{
		lifecycle:  newLifecycle(),
		dispatcher: cfg.Dispatcher,
		endpoint:   cfg.Endpoint,
		logger:     logger,
		metrics:    metrics,
		listeners:  NewListeners[event.LogEvent](logger),
	}
}

func (f *ForwardingProcessor) Start() {
	if f.start() {
		f.logger.Info("Forwarding processor started")
	}
}

// Process notifies dispatch listeners synchronously, then dispatches the event
// in the background.
func (f *ForwardingProcessor) Process(e event.Event) {
	ctx := context.Background()

	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.accepting() {
		f.counters.rejected.Add(1)
		f.metrics.RecordEventsDropped(ctx, DropRejected, 1)
		f.logger.Warn("Event ignored, processor not running", "state", f.State().String(), "uuid", e.UUID)
		return
	}

	f.counters.processed.Add(1)
	f.metrics.RecordEventProcessed(ctx)

	req := event.NewLogEvent(f.endpoint, []event.Event{e})
	f.listeners.Notify(req)

	f.wg.Add(1)
	f.counters.inflight.Add(1)
	f.metrics.RecordInflight(ctx, 1)
	go func() {
		defer func() {
			f.counters.inflight.Add(-1)
			f.metrics.RecordInflight(ctx, -1)
			f.wg.Done()
		}()
		f.dispatch(ctx, req)
	}()
}

func (f *ForwardingProcessor) dispatch(ctx context.Context, req event.LogEvent) {
	f.counters.attempts.Add(1)
	f.metrics.RecordDispatchAttempt(ctx)

	start := time.Now()
	if _, err := f.dispatcher.Dispatch(ctx, req); err != nil {
		f.counters.failed.Add(1)
		f.metrics.RecordEventsDropped(ctx, DropExhausted, req.Params.Len())
		f.logger.Warn("Delivery failed, dropping event", "error", err)
		return
	}
	f.counters.delivered.Add(1)
	f.metrics.RecordBatchDelivered(ctx, time.Since(start).Seconds(), req.Params.Len())
}

// Stop rejects further events and terminates once pending dispatches settle.
func (f *ForwardingProcessor) Stop() {
	switch f.beginStop() {
	case StateNew:
		f.logger.Info("Forwarding processor stopped before start")
	case StateRunning:
		// Process calls past the accepting check finish their wg.Add first.
		f.mu.Lock()
		f.mu.Unlock()
		go func() {
			f.wg.Wait()
			f.finish()
			f.logger.Info("Forwarding processor terminated", "delivered", f.counters.delivered.Load())
		}()
	}
}

// Close stops the processor and waits for it to terminate.
func (f *ForwardingProcessor) Close(ctx context.Context) error {
	f.Stop()
	return f.OnTerminated(ctx)
}

func (f *ForwardingProcessor) OnDispatch(fn func(event.LogEvent)) func() {
	id := f.listeners.Subscribe(fn)
	return func() { f.listeners.Unsubscribe(id) }
}

// Stats returns current counters. QueueDepth is always zero.
func (f *ForwardingProcessor) Stats() Stats {
	return f.counters.snapshot(0)
}

var _ Processor = (*ForwardingProcessor)(nil)

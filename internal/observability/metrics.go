package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"flagkit/pkg/processor"
)

// Metrics holds the relay's HTTP and event pipeline instruments.
type Metrics struct {
	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Pipeline traffic
	EventsProcessed  metric.Int64Counter
	EventsDropped    metric.Int64Counter
	DispatchAttempts metric.Int64Counter

	// Delivery outcomes
	BatchDuration  metric.Float64Histogram
	BatchDelivered metric.Int64Counter
	EventsSent     metric.Int64Counter
	BatchPersisted metric.Int64Counter
	BatchSwept     metric.Int64Counter

	// Saturation
	QueueSize metric.Int64Gauge
	Inflight  metric.Int64UpDownCounter
}

// NewMetrics registers instruments with the default Prometheus registry,
// installs the meter provider globally and returns the scrape handler.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter("flagkit"))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// NewMetricsWithRegistry registers instruments with reg only.
func NewMetricsWithRegistry(reg *promclient.Registry) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := newMetrics(provider.Meter("flagkit"))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	); err != nil {
		return nil, err
	}
	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	); err != nil {
		return nil, err
	}

	if m.EventsProcessed, err = meter.Int64Counter(
		"events_processed_total",
		metric.WithDescription("Events accepted into the processor queue"),
	); err != nil {
		return nil, err
	}
	if m.EventsDropped, err = meter.Int64Counter(
		"events_dropped_total",
		metric.WithDescription("Events lost, by reason (evicted, rejected, permanent, exhausted, store_error)"),
	); err != nil {
		return nil, err
	}
	if m.DispatchAttempts, err = meter.Int64Counter(
		"dispatch_attempts_total",
		metric.WithDescription("Batch dispatch attempts including retries"),
	); err != nil {
		return nil, err
	}

	if m.BatchDuration, err = meter.Float64Histogram(
		"batch_delivery_duration_seconds",
		metric.WithDescription("Time from first attempt to confirmed delivery"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	); err != nil {
		return nil, err
	}
	if m.BatchDelivered, err = meter.Int64Counter(
		"batches_delivered_total",
		metric.WithDescription("Batches confirmed by the collector"),
	); err != nil {
		return nil, err
	}
	if m.EventsSent, err = meter.Int64Counter(
		"events_delivered_total",
		metric.WithDescription("Events inside delivered batches"),
	); err != nil {
		return nil, err
	}
	if m.BatchPersisted, err = meter.Int64Counter(
		"batches_persisted_total",
		metric.WithDescription("Batches written to the pending store after retries ran out"),
	); err != nil {
		return nil, err
	}
	if m.BatchSwept, err = meter.Int64Counter(
		"batches_swept_total",
		metric.WithDescription("Pending batches picked up for redelivery"),
	); err != nil {
		return nil, err
	}

	if m.QueueSize, err = meter.Int64Gauge(
		"event_queue_size",
		metric.WithDescription("Events buffered awaiting flush (saturation)"),
	); err != nil {
		return nil, err
	}
	if m.Inflight, err = meter.Int64UpDownCounter(
		"dispatch_inflight",
		metric.WithDescription("Deliveries and sweeps currently running"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordEventProcessed(ctx context.Context) {
	m.EventsProcessed.Add(ctx, 1)
}

func (m *Metrics) RecordEventsDropped(ctx context.Context, reason string, count int) {
	m.EventsDropped.Add(ctx, int64(count), WithReason(reason))
}

func (m *Metrics) RecordDispatchAttempt(ctx context.Context) {
	m.DispatchAttempts.Add(ctx, 1)
}

// RecordBatchDelivered records a delivered batch, its latency and size.
func (m *Metrics) RecordBatchDelivered(ctx context.Context, durationSeconds float64, events int) {
	m.BatchDelivered.Add(ctx, 1)
	m.EventsSent.Add(ctx, int64(events))
	m.BatchDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordBatchPersisted(ctx context.Context) {
	m.BatchPersisted.Add(ctx, 1)
}

func (m *Metrics) RecordBatchSwept(ctx context.Context) {
	m.BatchSwept.Add(ctx, 1)
}

func (m *Metrics) RecordQueueSize(ctx context.Context, size int64) {
	m.QueueSize.Record(ctx, size)
}

func (m *Metrics) RecordInflight(ctx context.Context, delta int64) {
	m.Inflight.Add(ctx, delta)
}

var _ processor.MetricsRecorder = (*Metrics)(nil)

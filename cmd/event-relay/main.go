// event-relay accepts flag events over HTTP and delivers them to the collector
// through a batching, retrying event processor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flagkit/internal/api"
	"flagkit/internal/config"
	"flagkit/internal/health"
	"flagkit/internal/observability"
	"flagkit/pkg/dispatcher"
	"flagkit/pkg/processor"
	"flagkit/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadRelayConfig()
	procCfg := processor.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	checks := []health.Check{}

	// Create dispatcher
	eventDispatcher, closeDispatcher, err := newDispatcher(svcCfg)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	// Create pending store
	pending, storeCheck, closeStore, err := newPendingStore(ctx, svcCfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if storeCheck != nil {
		checks = append(checks, health.Check{Name: "store", Checker: storeCheck})
	}

	procCfg.Dispatcher = eventDispatcher
	procCfg.Store = pending
	procCfg.Metrics = metrics
	eventProcessor := processor.NewBatch(procCfg)
	eventProcessor.Start()

	startCtx, startCancel := context.WithTimeout(ctx, 5*time.Second)
	defer startCancel()
	if err := eventProcessor.OnRunning(startCtx); err != nil {
		return fmt.Errorf("event processor did not start: %w", err)
	}

	// Create health checker
	checks = append(checks, health.Check{
		Name:     "processor",
		Checker:  health.ProcessorReady(eventProcessor),
		Critical: true,
	})
	healthChecker := health.NewChecker(checks...)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Pipeline:      eventProcessor,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		closeProcessor(eventProcessor, svcCfg.ShutdownTimeout)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Stop accepting requests, finish in-flight ones
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Flush buffered events and wait for dispatches to settle
	closeProcessor(eventProcessor, svcCfg.ShutdownTimeout)

	slog.Info("Shutdown complete")
	return nil
}

func closeProcessor(p *processor.BatchProcessor, timeout time.Duration) {
	slog.Info("Flushing event processor")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		slog.Warn("Event processor shutdown error", "error", err)
	}

	stats := p.Stats()
	slog.Info("Event processor stats",
		"processed", stats.Processed,
		"delivered", stats.Delivered,
		"persisted", stats.Persisted,
		"failed", stats.Failed,
		"evicted", stats.Evicted,
	)
}

// newDispatcher returns the broker publisher when AMQP_URL is set and the HTTP
// dispatcher otherwise.
func newDispatcher(cfg *config.RelayConfig) (dispatcher.Dispatcher, func(), error) {
	if !cfg.BrokerMode() {
		slog.Info("Dispatching to collector over HTTP", "gzip", cfg.Gzip)
		return dispatcher.NewHTTP(dispatcher.HTTPConfig{Gzip: cfg.Gzip}), func() {}, nil
	}

	amqpCfg := amqp.NewDurablePubSubConfig(cfg.AMQPURL, amqp.GenerateQueueNameTopicName)
	pub, err := amqp.NewPublisher(amqpCfg, watermill.NewSlogLogger(slog.Default()))
	if err != nil {
		return nil, nil, fmt.Errorf("create amqp publisher: %w", err)
	}
	slog.Info("Dispatching to message broker", "topic", cfg.Topic)

	p := dispatcher.NewPublisher(pub, cfg.Topic)
	return p, func() { closeQuietly("publisher", p) }, nil
}

// newPendingStore builds the store for batches whose retries ran out. The
// returned checker is nil for stores without a remote dependency.
func newPendingStore(ctx context.Context, cfg *config.RelayConfig) (store.Pending, health.ReadinessChecker, func(), error) {
	noop := func() {}

	switch cfg.Store {
	case config.StoreNone, "":
		slog.Warn("No pending store configured - undeliverable batches will be dropped")
		return nil, nil, noop, nil

	case config.StoreMemory:
		return store.NewTypedPending(store.NewMemory[store.PendingEntry](store.DefaultMemoryCapacity)), nil, noop, nil

	case config.StoreFile:
		f, err := store.NewFile(cfg.StoreDir)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("Using file pending store", "dir", cfg.StoreDir)
		return store.NewEncodedPending(f, store.JSONCodec, slog.Default()), nil, noop, nil

	case config.StoreRedis:
		client, err := store.ConnectRedis(ctx, cfg.RedisURL, 5, time.Second)
		if err != nil {
			return nil, nil, nil, err
		}
		r := store.NewRedis(client, store.RedisConfig{Namespace: "flagkit:"})
		slog.Info("Connected to Redis pending store")
		check := health.ReadinessFunc(r.Ping)
		return store.NewEncodedPending(r, store.JSONCodec, slog.Default()), check, func() { closeQuietly("redis", r) }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown EVENT_STORE %q", cfg.Store)
	}
}

func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("Close failed", "resource", name, "error", err)
	}
}

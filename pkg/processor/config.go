package processor

import (
	"log/slog"
	"time"

	"flagkit/internal/config"
	"flagkit/pkg/backoff"
	"flagkit/pkg/dispatcher"
	"flagkit/pkg/store"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 1 * time.Second
	DefaultMaxQueueSize  = 10000
	DefaultMaxRetries    = 5
	DefaultEndpoint      = "https://logx.flagkit.dev/v1/events"
)

// RetryConfig bounds redelivery of a failed batch.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt (default: 5)
	MinBackoff time.Duration // default: 1s
	MaxBackoff time.Duration // default: 32s
	Jitter     time.Duration // default: 500ms, negative disables
}

// Config configures a BatchProcessor. All fields are optional.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxQueueSize  int
	Retry         RetryConfig

	// FailedEventRetryInterval enables the sweeper when Store is also set.
	FailedEventRetryInterval time.Duration
	Store                    store.Pending

	Dispatcher dispatcher.Dispatcher
	Endpoint   string
	Logger     *slog.Logger
	Metrics    MetricsRecorder
}

// LoadConfigFromEnv reads processor tuning from environment variables.
// Store, Dispatcher and Metrics are left for the caller to wire.
func LoadConfigFromEnv() Config {
	cfg := Config{
		BatchSize:     config.GetIntEnv("EVENT_BATCH_SIZE", DefaultBatchSize),
		FlushInterval: config.GetDurationEnv("EVENT_FLUSH_INTERVAL", DefaultFlushInterval),
		MaxQueueSize:  config.GetIntEnv("EVENT_MAX_QUEUE_SIZE", DefaultMaxQueueSize),
		Retry: RetryConfig{
			MaxRetries: config.GetIntEnv("EVENT_MAX_RETRIES", DefaultMaxRetries),
			MinBackoff: config.GetDurationEnv("EVENT_MIN_BACKOFF", backoff.DefaultMin),
			MaxBackoff: config.GetDurationEnv("EVENT_MAX_BACKOFF", backoff.DefaultMax),
		},
		FailedEventRetryInterval: config.GetDurationEnv("EVENT_FAILED_RETRY_INTERVAL", 0),
		Endpoint:                 config.GetEnv("EVENT_ENDPOINT", DefaultEndpoint),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.MaxQueueSize < c.BatchSize {
		c.MaxQueueSize = c.BatchSize
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	} else if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Dispatcher == nil {
		c.Dispatcher = dispatcher.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// sweepEnabled reports whether persisted batches are periodically redelivered.
func (c Config) sweepEnabled() bool {
	return c.Store != nil && c.FailedEventRetryInterval > 0
}

func (c RetryConfig) backoff() *backoff.Exponential {
	return backoff.New(backoff.Config{
		Min:    c.MinBackoff,
		Max:    c.MaxBackoff,
		Jitter: c.Jitter,
	})
}

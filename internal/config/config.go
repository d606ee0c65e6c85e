// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// Store backends accepted by EVENT_STORE.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// RelayConfig holds configuration for the event relay service.
type RelayConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	ShutdownTimeout   time.Duration // Upper bound on flushing the processor at exit

	Store    string // none, memory, file or redis
	StoreDir string // directory for the file store
	RedisURL string

	// Broker mode publishes batches to AMQPURL/Topic instead of POSTing them.
	AMQPURL string
	Topic   string

	Gzip bool // compress collector request bodies
}

// LoadRelayConfig loads relay configuration from environment variables.
func LoadRelayConfig() *RelayConfig {
	cfg := &RelayConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		ShutdownTimeout:   GetDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Store:             GetEnv("EVENT_STORE", StoreNone),
		StoreDir:          GetEnv("EVENT_STORE_DIR", "/var/lib/flagkit/pending"),
		RedisURL:          GetEnv("REDIS_URL", ""),
		AMQPURL:           GetEnv("AMQP_URL", ""),
		Topic:             GetEnv("EVENT_TOPIC", "flagkit.events"),
		Gzip:              GetBoolEnv("DISPATCH_GZIP", false),
	}
	// A Redis URL alone selects the Redis store.
	if cfg.Store == StoreNone && cfg.RedisURL != "" {
		cfg.Store = StoreRedis
	}
	return cfg
}

// BrokerMode reports whether batches go to a message broker.
func (c *RelayConfig) BrokerMode() bool {
	return c.AMQPURL != ""
}

// Package backoff provides exponential backoff calculation with jitter.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Defaults used when Config fields are zero.
const (
	DefaultMin    = 1 * time.Second
	DefaultMax    = 32 * time.Second
	DefaultJitter = 500 * time.Millisecond
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Min    time.Duration // default: 1s
	Max    time.Duration // default: 32s
	Jitter time.Duration // upper bound of random jitter added to each delay (default: 500ms, negative disables)
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Min <= 0 {
		c.Min = DefaultMin
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	}
	return c
}

// Exponential is a delay provider, not a scheduler.
// Attempt 0 returns min, attempt 1 returns min*2, etc., capped at max,
// plus a random jitter in [0, Jitter).
type Exponential struct {
	cfg  Config
	rand func(n int64) int64
}

// New creates an exponential backoff provider.
func New(cfg Config) *Exponential {
	return &Exponential{
		cfg:  cfg.withDefaults(),
		rand: rand.Int64N,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (e *Exponential) Delay(attempt int) time.Duration {
	return e.Base(attempt) + e.jitter()
}

// Base returns the delay for attempt without jitter.
func (e *Exponential) Base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(e.cfg.Min) * math.Pow(2.0, float64(attempt))
	if d > float64(e.cfg.Max) {
		return e.cfg.Max
	}
	return time.Duration(d)
}

func (e *Exponential) jitter() time.Duration {
	if e.cfg.Jitter <= 0 {
		return 0
	}
	return time.Duration(e.rand(int64(e.cfg.Jitter)))
}

// Config returns the effective configuration.
func (e *Exponential) Config() Config {
	return e.cfg
}

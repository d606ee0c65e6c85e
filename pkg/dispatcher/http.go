package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"flagkit/pkg/event"

	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without contacting the collector while its breaker is open.
var ErrCircuitOpen = errors.New("dispatcher circuit open")

// HTTPConfig configures the HTTP dispatcher. Zero values use defaults.
type HTTPConfig struct {
	Timeout          time.Duration // per-request timeout (default: 10s)
	Gzip             bool          // compress request bodies
	BreakerThreshold uint32        // consecutive failures before opening (default: 5)
	BreakerCooldown  time.Duration // open duration before half-open (default: 30s)
	Client           *http.Client  // overrides the transport entirely
}

// withDefaults fills in zero values with defaults.
func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// HTTP sends log events as JSON POST requests.
// Each collector host gets its own circuit breaker, created lazily.
type HTTP struct {
	client *http.Client
	config HTTPConfig
	logger *slog.Logger

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTP creates an HTTP dispatcher with standard transport settings.
func NewHTTP(cfg HTTPConfig) *HTTP {
	cfg = cfg.withDefaults()

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &HTTP{
		client:   client,
		config:   cfg,
		logger:   slog.With("component", "http_dispatcher"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Dispatch delivers req through the breaker for its host.
func (h *HTTP) Dispatch(ctx context.Context, req event.LogEvent) (Response, error) {
	breaker := h.breaker(extractHost(req.URL))

	out, err := breaker.Execute(func() (interface{}, error) {
		return h.send(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Response{}, fmt.Errorf("%w: %s", ErrCircuitOpen, breaker.Name())
	}
	if err != nil {
		return Response{}, err
	}
	return out.(Response), nil
}

func (h *HTTP) send(ctx context.Context, req event.LogEvent) (Response, error) {
	body, err := req.Body()
	if err != nil {
		return Response{}, err
	}

	var reader io.Reader = bytes.NewReader(body)
	if h.config.Gzip {
		compressed, err := gzipBody(body)
		if err != nil {
			return Response{}, fmt.Errorf("failed to compress body: %w", err)
		}
		reader = bytes.NewReader(compressed)
	}

	method := req.HTTPVerb
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.config.Gzip {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Response{StatusCode: resp.StatusCode}, nil
	}
	return Response{StatusCode: resp.StatusCode}, &HTTPError{StatusCode: resp.StatusCode}
}

// breaker returns the circuit breaker for a host, creating one if needed.
func (h *HTTP) breaker(host string) *gobreaker.CircuitBreaker {
	h.mu.RLock()
	b, ok := h.breakers[host]
	h.mu.RUnlock()
	if ok {
		return b
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Double-check after acquiring write lock
	if b, ok = h.breakers[host]; ok {
		return b
	}

	threshold := h.config.BreakerThreshold
	b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: h.config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A client error means the collector is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn("Circuit breaker state changed", "host", name, "from", from.String(), "to", to.String())
		},
	})
	h.breakers[host] = b
	return b
}

// BreakerState returns the breaker state for host, or "closed" if none exists yet.
func (h *HTTP) BreakerState(host string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if b, ok := h.breakers[host]; ok {
		return b.State().String()
	}
	return gobreaker.StateClosed.String()
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(body); err != nil {
		_ = gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ Dispatcher = (*HTTP)(nil)

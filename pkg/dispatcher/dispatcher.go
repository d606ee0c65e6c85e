// Package dispatcher turns log events into network calls.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"flagkit/pkg/event"
)

// Dispatcher delivers one log event. Implementations own per-request timeouts
// and must be safe for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, req event.LogEvent) (Response, error)
}

// Response is the outcome of a delivered request.
type Response struct {
	StatusCode int
}

// Func adapts a plain function to the Dispatcher interface.
type Func func(ctx context.Context, req event.LogEvent) (Response, error)

// Dispatch calls f(ctx, req).
func (f Func) Dispatch(ctx context.Context, req event.LogEvent) (Response, error) {
	return f(ctx, req)
}

// HTTPError represents a non-2xx response from the collector.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsPermanent reports whether err can never succeed on retry.
// 4xx responses are permanent except 408 and 429.
func IsPermanent(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	switch he.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return he.StatusCode >= 400 && he.StatusCode < 500
}

// Default returns the standard HTTP dispatcher.
func Default() *HTTP {
	return NewHTTP(HTTPConfig{})
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"flagkit/internal/health"
	"flagkit/pkg/event"
	"flagkit/pkg/processor"
)

// fakePipeline records processed events.
type fakePipeline struct {
	mu     sync.Mutex
	state  processor.State
	events []event.Event
}

func newFakePipeline(state processor.State) *fakePipeline {
	return &fakePipeline{state: state}
}

func (f *fakePipeline) Process(e event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakePipeline) State() processor.State {
	return f.state
}

func (f *fakePipeline) Stats() processor.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return processor.Stats{Processed: int64(len(f.events))}
}

func (f *fakePipeline) Events() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Event(nil), f.events...)
}

const validBody = `{"events":[
	{"type":"impression","context":{"accountId":"a1","projectId":"p1","revision":"3"},
	 "user":{"id":"u1"},"impression":{"experimentId":"e1","variationId":"v1"}},
	{"type":"conversion","uuid":"fixed-uuid","timestamp":42,"context":{"accountId":"a1","projectId":"p1","revision":"3"},
	 "user":{"id":"u2"},"conversion":{"eventKey":"purchase","tags":{"revenue":100}}}
]}`

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(),
	}

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	handler.Livez(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		state      processor.State
		wantStatus int
	}{
		{"running", processor.StateRunning, http.StatusOK},
		{"not started", processor.StateNew, http.StatusServiceUnavailable},
		{"terminated", processor.StateTerminated, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pipeline := newFakePipeline(tt.state)
			checker := health.NewChecker(health.Check{
				Name:     "processor",
				Checker:  health.ProcessorReady(pipeline),
				Critical: true,
			})
			handler := NewHandler(pipeline, checker)

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()
			handler.Readyz(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestHandler_IngestEvents(t *testing.T) {
	t.Parallel()
	pipeline := newFakePipeline(processor.StateRunning)
	handler := NewHandler(pipeline, health.NewChecker())

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.IngestEvents(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}

	var resp IngestResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Accepted != 2 {
		t.Errorf("Expected 2 accepted, got %d", resp.Accepted)
	}

	events := pipeline.Events()
	if len(events) != 2 {
		t.Fatalf("Expected 2 processed events, got %d", len(events))
	}
	if events[0].UUID == "" || events[0].Timestamp == 0 {
		t.Errorf("Expected missing uuid and timestamp to be filled, got %+v", events[0])
	}
	if events[1].UUID != "fixed-uuid" || events[1].Timestamp != 42 {
		t.Errorf("Expected supplied uuid and timestamp to be kept, got %q %d", events[1].UUID, events[1].Timestamp)
	}
	if events[0].User.ID != "u1" || events[1].User.ID != "u2" {
		t.Error("Expected events to be processed in request order")
	}
}

func TestHandler_IngestEvents_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"malformed json", `{"events": [}`},
		{"no events", `{"events": []}`},
		{"missing account", `{"events":[{"type":"impression","context":{"projectId":"p"},"user":{"id":"u"},"impression":{}}]}`},
		{"missing user", `{"events":[{"type":"impression","context":{"accountId":"a","projectId":"p"},"user":{},"impression":{}}]}`},
		{"unknown type", `{"events":[{"type":"click","context":{"accountId":"a","projectId":"p"},"user":{"id":"u"}}]}`},
		{"impression without metadata", `{"events":[{"type":"impression","context":{"accountId":"a","projectId":"p"},"user":{"id":"u"}}]}`},
		{"conversion without key", `{"events":[{"type":"conversion","context":{"accountId":"a","projectId":"p"},"user":{"id":"u"},"conversion":{}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pipeline := newFakePipeline(processor.StateRunning)
			handler := NewHandler(pipeline, health.NewChecker())

			req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.IngestEvents(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			var resp map[string]string
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] == "" {
				t.Error("Expected error message in response")
			}
			if n := len(pipeline.Events()); n != 0 {
				t.Errorf("Expected no events processed, got %d", n)
			}
		})
	}
}

func TestHandler_IngestEvents_TooMany(t *testing.T) {
	t.Parallel()
	handler := NewHandler(newFakePipeline(processor.StateRunning), health.NewChecker())

	one := `{"type":"conversion","context":{"accountId":"a","projectId":"p"},"user":{"id":"u"},"conversion":{"eventKey":"k"}}`
	parts := make([]string, maxEventsPerRequest+1)
	for i := range parts {
		parts[i] = one
	}
	body := `{"events":[` + strings.Join(parts, ",") + `]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.IngestEvents(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, w.Code)
	}
}

func TestHandler_IngestEvents_NotRunning(t *testing.T) {
	t.Parallel()
	pipeline := newFakePipeline(processor.StateTerminated)
	handler := NewHandler(pipeline, health.NewChecker())

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody))
	w := httptest.NewRecorder()

	handler.IngestEvents(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if n := len(pipeline.Events()); n != 0 {
		t.Errorf("Expected no events processed, got %d", n)
	}
}

func TestHandler_Stats(t *testing.T) {
	t.Parallel()
	pipeline := newFakePipeline(processor.StateRunning)
	pipeline.Process(event.Event{})
	handler := NewHandler(pipeline, health.NewChecker())

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()

	handler.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var stats processor.Stats
	json.NewDecoder(w.Body).Decode(&stats)
	if stats.Processed != 1 {
		t.Errorf("Expected processed=1, got %d", stats.Processed)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()
	pipeline := newFakePipeline(processor.StateRunning)
	router := NewRouter(RouterConfig{
		Pipeline:      pipeline,
		HealthChecker: health.NewChecker(),
		APIKey:        "secret",
	})

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(validBody))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}

	// Probes skip auth.
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected livez to bypass auth, got %d", w.Code)
	}
}

func TestMiddleware_Logging(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := LoggingMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a generated request ID")
	}

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(requestIDHeader, "req-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "req-1" {
		t.Errorf("Expected request ID to be echoed, got %q", got)
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestMiddleware_ContentType(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler := ContentTypeMiddleware()(inner)

	// Test with wrong content type
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status %d, got %d", http.StatusUnsupportedMediaType, w.Code)
	}

	// Charset parameter is allowed
	called = false
	req = httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_ContentType_EmptyBodyAllowed(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := ContentTypeMiddleware()(inner)

	// GET requests don't need content-type
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler should be called for GET requests")
	}
}

func TestMiddleware_CORS(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := CORSMiddleware()(inner)

	// Test OPTIONS preflight
	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	if called {
		t.Error("Preflight should not reach the inner handler")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

// Package api provides the HTTP handlers and routing for the event relay.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"flagkit/internal/apperrors"
	"flagkit/internal/health"
	"flagkit/pkg/event"
	"flagkit/pkg/processor"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
	maxRequestBodySize = 1 << 20
	// maxEventsPerRequest bounds a single ingest call.
	maxEventsPerRequest = 500
)

// Pipeline is the event processor the relay feeds.
type Pipeline interface {
	Process(e event.Event)
	State() processor.State
	Stats() processor.Stats
}

// IngestRequest is the body of POST /v1/events.
type IngestRequest struct {
	Events []event.Event `json:"events"`
}

// IngestResponse reports how many events were queued.
type IngestResponse struct {
	Accepted int `json:"accepted"`
}

// Handler contains HTTP handlers for the relay API
type Handler struct {
	pipeline Pipeline
	health   *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(pipeline Pipeline, healthChecker *health.Checker) *Handler {
	return &Handler{
		pipeline: pipeline,
		health:   healthChecker,
	}
}

// IngestEvents handles POST /v1/events
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.handleError(w, r, apperrors.TooLarge("body", maxRequestBodySize))
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := validateRequest(&req); err != nil {
		h.handleError(w, r, err)
		return
	}

	if state := h.pipeline.State(); state != processor.StateRunning {
		h.handleError(w, r, apperrors.Unavailable(fmt.Sprintf("processor is %s", state)))
		return
	}

	now := time.Now().UnixMilli()
	for _, e := range req.Events {
		if e.UUID == "" {
			e.UUID = uuid.NewString()
		}
		if e.Timestamp == 0 {
			e.Timestamp = now
		}
		h.pipeline.Process(e)
	}

	h.writeJSON(w, http.StatusAccepted, IngestResponse{Accepted: len(req.Events)})
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pipeline.Stats())
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 when the processor is not running or a critical dependency fails.
// A degraded store still reports 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError writes err with the status its class maps to.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Request failed", "error", err, "path", r.URL.Path, "status", status)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status, "field", apperrors.Field(err))
	}
	h.writeError(w, status, err.Error())
}

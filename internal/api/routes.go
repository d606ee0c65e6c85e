package api

import (
	"net/http"

	"flagkit/internal/health"
	"flagkit/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Pipeline      Pipeline
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Pipeline, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Probes - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/events", authMiddleware(http.HandlerFunc(handler.IngestEvents)))
	mux.Handle("GET /v1/stats", authMiddleware(http.HandlerFunc(handler.Stats)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}

// Package observability provides OpenTelemetry metrics exported in Prometheus format.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod = "method"
	attrPath   = "path"
	attrStatus = "status"
	attrReason = "reason"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func reasonAttr(reason string) attribute.KeyValue {
	return attribute.String(attrReason, reason)
}

// knownPaths bounds the path label to the relay's routes.
var knownPaths = map[string]bool{
	"/v1/events": true,
	"/v1/stats":  true,
	"/livez":     true,
	"/readyz":    true,
	"/metrics":   true,
}

// normalizePath collapses unknown paths so scanners cannot blow up label cardinality.
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}

// WithReason returns a metric option with the drop reason attribute.
func WithReason(reason string) metric.MeasurementOption {
	return metric.WithAttributes(reasonAttr(reason))
}

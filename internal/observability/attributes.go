// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrKind    = "kind"
	attrState   = "state"
	attrOutcome = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/jobs/abc123 -> /v1/jobs/{jobId}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrKind, kind)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

// normalizePath replaces dynamic path segments with placeholders. Routes
// outside the known set collapse to "other" so scanners cannot blow up the
// series count.
func normalizePath(path string) string {
	const jobPrefix = "/v1/jobs/"
	switch {
	case strings.HasPrefix(path, jobPrefix) && len(path) > len(jobPrefix):
		return "/v1/jobs/{jobId}"
	case path == "/v1/jobs", path == "/v1/recipes", path == "/livez", path == "/readyz", path == "/metrics",
		strings.HasPrefix(path, "/v1/vms/"), strings.HasPrefix(path, "/v1/snapshots/"):
		return path
	default:
		return "other"
	}
}

// WithKind returns a metric option with the job kind attribute.
func WithKind(kind string) metric.MeasurementOption {
	return metric.WithAttributes(kindAttr(kind))
}

// WithStatus returns a metric option with the status attribute.
func WithStatus(code int) metric.MeasurementOption {
	return metric.WithAttributes(statusAttr(code))
}

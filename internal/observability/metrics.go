package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests, jobs and steps take
// - Traffic: Request/job/webhook throughput
// - Errors: Rate of failures
// - Saturation: Jobs in flight
//
// It satisfies job.MetricsRecorder and webhook.MetricsRecorder.
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics (Latency, Traffic, Errors, Saturation)
	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobErrorsTotal metric.Int64Counter
	JobsActive     metric.Int64UpDownCounter
	StepDuration   metric.Float64Histogram

	// Webhook metrics (Latency, Traffic, Errors)
	WebhookDuration  metric.Float64Histogram
	WebhookDelivered metric.Int64Counter
	WebhookFailed    metric.Int64Counter
	WebhookSkipped   metric.Int64Counter
	WebhookAttempts  metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
// Each call gets its own registry, so the returned handler exposes only
// these instruments plus the Go and process collectors.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("vmjobs")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Job execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"jobs_total",
		metric.WithDescription("Total number of jobs launched"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"job_errors_total",
		metric.WithDescription("Total number of failed jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of currently running jobs (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StepDuration, err = meter.Float64Histogram(
		"job_step_duration_seconds",
		metric.WithDescription("Duration of individual job steps in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	// Webhook metrics
	m.WebhookDuration, err = meter.Float64Histogram(
		"webhook_delivery_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds, retries included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookDelivered, err = meter.Int64Counter(
		"webhook_delivered_total",
		metric.WithDescription("Total events acknowledged by the receiver"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookFailed, err = meter.Int64Counter(
		"webhook_failed_total",
		metric.WithDescription("Total events that exhausted their attempts"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookSkipped, err = meter.Int64Counter(
		"webhook_skipped_total",
		metric.WithDescription("Total events not sent because the destination circuit was open"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookAttempts, err = meter.Int64Counter(
		"webhook_attempts_total",
		metric.WithDescription("Total HTTP attempts made to deliver events"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobLaunched records a job accepted by the launcher.
func (m *Metrics) RecordJobLaunched(ctx context.Context, kind string) {
	m.JobsTotal.Add(ctx, 1, WithKind(kind))
}

// RecordJobStarted records a job entering Running.
func (m *Metrics) RecordJobStarted(ctx context.Context, kind string) {
	m.JobsActive.Add(ctx, 1, WithKind(kind))
}

// RecordJobFinished records a job reaching a terminal state.
func (m *Metrics) RecordJobFinished(ctx context.Context, kind, state string, durationSeconds float64) {
	attrs := metric.WithAttributes(kindAttr(kind), stateAttr(state))
	m.JobDuration.Record(ctx, durationSeconds, attrs)
	m.JobsActive.Add(ctx, -1, WithKind(kind))

	if state == "failed" {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordStep records one step outcome.
func (m *Metrics) RecordStep(ctx context.Context, kind, outcome string, durationSeconds float64) {
	m.StepDuration.Record(ctx, durationSeconds, metric.WithAttributes(kindAttr(kind), outcomeAttr(outcome)))
}

// RecordWebhookDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordWebhookDelivered(ctx context.Context, durationSeconds float64) {
	m.WebhookDelivered.Add(ctx, 1)
	m.WebhookDuration.Record(ctx, durationSeconds)
}

// RecordWebhookFailed records an event that could not be delivered.
func (m *Metrics) RecordWebhookFailed(ctx context.Context) {
	m.WebhookFailed.Add(ctx, 1)
}

// RecordWebhookSkipped records an event with no destination.
func (m *Metrics) RecordWebhookSkipped(ctx context.Context) {
	m.WebhookSkipped.Add(ctx, 1)
}

// RecordWebhookAttempt records a single HTTP attempt.
func (m *Metrics) RecordWebhookAttempt(ctx context.Context) {
	m.WebhookAttempts.Add(ctx, 1)
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	ErrorCounter    metric.Int64Counter
}

// NewServerMetrics creates the HTTP instruments on the global meter provider.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("identityapi/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records an HTTP request with method, route, status, and duration.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)
	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// CommandMetrics counts organization commands by name and outcome.
type CommandMetrics struct {
	Executed metric.Int64Counter
	Failed   metric.Int64Counter
	Duration metric.Float64Histogram
}

func NewCommandMetrics() (*CommandMetrics, error) {
	meter := otel.Meter("identityapi/commands")

	executed, err := meter.Int64Counter(
		"identity.command.count",
		metric.WithDescription("Total number of organization commands executed"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"identity.command.error.count",
		metric.WithDescription("Total number of organization commands that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"identity.command.duration",
		metric.WithDescription("Organization command duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return nil, err
	}

	return &CommandMetrics{Executed: executed, Failed: failed, Duration: duration}, nil
}

// RecordCommand records one command execution. A nil receiver is a no-op.
func (m *CommandMetrics) RecordCommand(ctx context.Context, command string, durationMs float64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrCommand, command))
	m.Executed.Add(ctx, 1, attrs)
	m.Duration.Record(ctx, durationMs, attrs)
	if err != nil {
		m.Failed.Add(ctx, 1, attrs)
	}
}

// OutboxMetrics tracks delivery of persisted domain events.
type OutboxMetrics struct {
	Dispatched metric.Int64Counter
	Failed     metric.Int64Counter
}

func NewOutboxMetrics() (*OutboxMetrics, error) {
	meter := otel.Meter("identityapi/outbox")

	dispatched, err := meter.Int64Counter(
		"identity.outbox.dispatch.count",
		metric.WithDescription("Total number of outbox events delivered"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"identity.outbox.failure.count",
		metric.WithDescription("Total number of outbox deliveries that failed"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &OutboxMetrics{Dispatched: dispatched, Failed: failed}, nil
}

// RecordDelivery records the outcome of one event delivery. A nil receiver
// is a no-op.
func (m *OutboxMetrics) RecordDelivery(ctx context.Context, eventType string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrEventType, eventType))
	if err != nil {
		m.Failed.Add(ctx, 1, attrs)
		return
	}
	m.Dispatched.Add(ctx, 1, attrs)
}

// HTTP attribute keys
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
)

package mcpdiag

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/pipevet/internal/mcpdiag"

// Metrics holds the diagnostic tool instruments.
type Metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
	errors      metric.Int64Counter
}

// NewMetrics creates a Metrics instance.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.invocations, err = m.meter.Int64Counter(
		"pipevet.mcp.tool.invocations_total",
		metric.WithDescription("Total diagnostic tool invocations by tool name"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"pipevet.mcp.tool.duration_seconds",
		metric.WithDescription("Diagnostic tool invocation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"pipevet.mcp.tool.errors_total",
		metric.WithDescription("Diagnostic tool errors by tool name and reason"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordInvocation records one tool call.
func (m *Metrics) RecordInvocation(ctx context.Context, toolName string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("tool", toolName),
	}

	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		errorAttrs := append(attrs, attribute.String("reason", categorizeError(err)))
		m.errors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}

// categorizeError reduces a tool error to a bounded reason label.
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "unknown session") || strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "required") || strings.Contains(errStr, "cannot be empty"):
		return "validation_error"
	case strings.Contains(errStr, "not configured"):
		return "unavailable"
	default:
		return "internal_error"
	}
}

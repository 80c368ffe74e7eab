package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/pipevet/internal/embeddings"

// Metrics records embedding generation telemetry.
type Metrics struct {
	logger   *zap.Logger
	meter    metric.Meter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates embedding metrics. Instrument creation failures are
// logged and the affected instrument stays nil.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		logger: logger,
		meter:  otel.Meter(instrumentationName),
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"pipevet.embedding.generation_duration_seconds",
		metric.WithDescription("Time to generate an embedding"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create embedding duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"pipevet.embedding.errors_total",
		metric.WithDescription("Total embedding generation failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create embedding errors counter", zap.Error(err))
	}
}

// RecordGeneration records one embedding call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

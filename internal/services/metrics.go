package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "intake-pipeline/backend/services"

type invokerMetrics struct {
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

// newInvokerMetrics binds instruments on the global meter provider, which is
// a no-op unless the host installs one.
func newInvokerMetrics() *invokerMetrics {
	meter := otel.Meter(meterName)
	invocations, err := meter.Int64Counter("pipeline.invocations",
		metric.WithDescription("Normalization pipeline invocations by outcome"))
	if err != nil {
		otel.Handle(err)
	}
	duration, err := meter.Float64Histogram("pipeline.duration_ms",
		metric.WithDescription("Normalization pipeline call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		otel.Handle(err)
	}
	return &invokerMetrics{invocations: invocations, duration: duration}
}

func (m *invokerMetrics) record(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

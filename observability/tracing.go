package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/gateway"

// Tracer provides OpenTelemetry tracing for gateway deliveries.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new gateway tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, eventID, endpointID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "gateway.delivery",
		trace.WithAttributes(
			attribute.String("gateway.delivery_id", deliveryID),
			attribute.String("gateway.event_id", eventID),
			attribute.String("gateway.endpoint_id", endpointID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("gateway.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("gateway.error", err))
	}
	span.End()
}

package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the gateway, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsPublishedTotal gu.Counter
	DeliveriesTotal      gu.Counter
	DeliveryLatency      gu.Histogram
	AuthRejectionsTotal  gu.Counter
	RateLimitDenials     gu.Counter
	DLQSize              gu.Gauge
	PendingDeliveries    gu.Gauge
}

// NewMetrics creates gateway metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector() for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsPublishedTotal: factory.Counter("gateway_events_published_total"),
		DeliveriesTotal:      factory.Counter("gateway_deliveries_total"),
		DeliveryLatency:      factory.Histogram("gateway_delivery_latency_seconds"),
		AuthRejectionsTotal:  factory.Counter("gateway_auth_rejections_total"),
		RateLimitDenials:     factory.Counter("gateway_rate_limit_denials_total"),
		DLQSize:              factory.Gauge("gateway_dlq_size"),
		PendingDeliveries:    factory.Gauge("gateway_pending_deliveries"),
	}
}

// RecordDelivery records a delivery attempt with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordRejection records an authentication rejection with the given reason.
func (m *Metrics) RecordRejection(reason string) {
	m.AuthRejectionsTotal.WithLabels(map[string]string{"reason": reason}).Inc()
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for auth metrics.
const MeterName = "studyhub.auth"

// Metrics holds the auth subsystem counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	events   metric.Int64Counter
	degraded metric.Int64Counter
}

// NewMetrics creates the counters on the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(MeterName)
	events, err := meter.Int64Counter("auth.events",
		metric.WithDescription("Security events by type (throttled, session_evicted, token_revoked, ...)"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	degraded, err := meter.Int64Counter("auth.store.degraded",
		metric.WithDescription("Operations that failed open because the TTL store was unavailable"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{events: events, degraded: degraded}, nil
}

// RecordEvent counts one security event.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

// RecordDegraded counts one fail-open decision.
func (m *Metrics) RecordDegraded(ctx context.Context, component, op string) {
	if m == nil {
		return
	}
	m.degraded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("op", op),
	))
}

// Package telemetry wraps the OpenTelemetry metric API so the Synchronous
// Audit Engine and Resource Manager can emit counters/gauges without
// depending on a concrete exporter (spec.md's out-of-scope boundary keeps
// MCP transport and deployment concerns external to this library — the
// caller supplies a metric.MeterProvider if it wants the numbers exported
// anywhere; the no-op global provider is a safe default).
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Meter publishes counters and gauges for the audit engine. It is safe for
// concurrent use and safe to use with the default (no-op) MeterProvider.
type Meter struct {
	mu       sync.Mutex
	meter    metric.Meter
	counters map[string]metric.Float64Counter
	gauges   map[string]metric.Float64Histogram
}

// NewMeter builds a Meter against the global OTel MeterProvider, or the one
// the host process has configured via otel.SetMeterProvider.
func NewMeter(instrumentationName string) *Meter {
	return &Meter{
		meter:    otel.Meter(instrumentationName),
		counters: make(map[string]metric.Float64Counter),
		gauges:   make(map[string]metric.Float64Histogram),
	}
}

// IncrCounter adds delta to the named counter, creating it on first use.
func (m *Meter) IncrCounter(ctx context.Context, name string, delta float64, labels map[string]string) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(ctx, delta, metric.WithAttributes(attrsFromLabels(labels)...))
}

// RecordValue records an observation (duration, watermark percentage, ...)
// into the named histogram, creating it on first use.
func (m *Meter) RecordValue(ctx context.Context, name string, value float64, labels map[string]string) {
	m.mu.Lock()
	h, ok := m.gauges[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.gauges[name] = h
	}
	m.mu.Unlock()
	h.Record(ctx, value, metric.WithAttributes(attrsFromLabels(labels)...))
}

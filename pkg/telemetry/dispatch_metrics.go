package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery modes reported on dispatch metrics.
const (
	ModeDetached = "detached"
	ModeAwaited  = "awaited"
)

// Delivery outcomes reported on dispatch metrics.
const (
	OutcomeDelivered   = "delivered"
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
)

// DispatchMetrics holds the Prometheus metrics for outbound deliveries.
type DispatchMetrics struct {
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	inflight         prometheus.Gauge
	routedTotal      *prometheus.CounterVec
	configReloads    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewDispatchMetrics creates the dispatch metrics on a private registry.
func NewDispatchMetrics() *DispatchMetrics {
	registry := prometheus.NewRegistry()

	m := &DispatchMetrics{
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_chain_deliveries_total",
				Help: "Outbound event deliveries by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polis_chain_delivery_duration_seconds",
				Help:    "Outbound delivery latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "polis_chain_deliveries_inflight",
				Help: "Deliveries submitted to the worker pool and not yet finished",
			},
		),
		routedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_chain_routed_events_total",
				Help: "Routed events by resulting source and dispatch policy",
			},
			[]string{"source", "policy"},
		),
		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_chain_config_reloads_total",
				Help: "Configuration reload attempts by status",
			},
			[]string{"status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.deliveriesTotal,
		m.deliveryDuration,
		m.inflight,
		m.routedTotal,
		m.configReloads,
	)

	return m
}

// DeliveryStarted marks a delivery as in flight.
func (m *DispatchMetrics) DeliveryStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// DeliveryFinished records the outcome of a delivery and clears its in-flight mark.
func (m *DispatchMetrics) DeliveryFinished(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.deliveriesTotal.WithLabelValues(mode, outcome).Inc()
	m.deliveryDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRouted counts a routed event.
func (m *DispatchMetrics) RecordRouted(source, policy string) {
	if m == nil {
		return
	}
	m.routedTotal.WithLabelValues(source, policy).Inc()
}

// RecordConfigReload records a configuration reload attempt.
func (m *DispatchMetrics) RecordConfigReload(status string) {
	if m == nil {
		return
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *DispatchMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *DispatchMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Package telemetry wires OpenTelemetry tracing and metrics plus the
// Prometheus dispatch metrics for the step router.
//
// It centralises trace provider setup and offers recording helpers so the
// engine can report step executions, scatter-gather batches and outbound
// deliveries without depending on exporter details.
package telemetry

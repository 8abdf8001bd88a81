package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope used for router metrics.
const MeterName = "polis_chain.router"

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	stepExecutionCounter  metric.Int64Counter
	stepLatencyHistogram  metric.Float64Histogram
	gatherCounter         metric.Int64Counter
	gatherBatchCounter    metric.Int64Counter
	routingFailureCounter metric.Int64Counter
)

// StepMetrics captures the fields needed to record a step execution.
type StepMetrics struct {
	Step     string
	Source   string
	Outcome  string
	Duration time.Duration
}

// RecordStepMetrics emits the execution counter and latency histogram for one step.
func RecordStepMetrics(ctx context.Context, m StepMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("step.name", m.Step),
		attribute.String("event.source", m.Source),
		attribute.String("step.outcome", m.Outcome),
	)

	stepExecutionCounter.Add(ctx, 1, attrs)
	if m.Duration > 0 {
		stepLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}
}

// RecordGather records one convergent execution and, when complete is set,
// the end of a scatter-gather batch.
func RecordGather(ctx context.Context, complete bool) {
	if err := ensureMetrics(); err != nil {
		return
	}
	gatherCounter.Add(ctx, 1)
	if complete {
		gatherBatchCounter.Add(ctx, 1)
	}
}

// RecordRoutingFailure counts routing passes rejected before a plan was built.
func RecordRoutingFailure(ctx context.Context, reason string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	routingFailureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("failure.reason", reason)))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(MeterName)

		stepExecutionCounter, metricsInitErr = meter.Int64Counter(
			"polis_chain.step.executions_total",
			metric.WithDescription("Chain step executions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stepLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"polis_chain.step.duration_ms",
			metric.WithDescription("Observed step execution latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		gatherCounter, metricsInitErr = meter.Int64Counter(
			"polis_chain.gather.observed_total",
			metric.WithDescription("Convergent step executions counted toward a batch"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		gatherBatchCounter, metricsInitErr = meter.Int64Counter(
			"polis_chain.gather.batches_total",
			metric.WithDescription("Completed scatter-gather batches"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		routingFailureCounter, metricsInitErr = meter.Int64Counter(
			"polis_chain.routing.failures_total",
			metric.WithDescription("Routing passes rejected before dispatch"),
			metric.WithUnit("{count}"),
		)
	})

	return metricsInitErr
}

// RecordBatchEvent attaches a batch completion event to the provided span.
func RecordBatchEvent(span trace.Span, batch, count int64) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent("gather.batch_complete", trace.WithAttributes(
		attribute.Int64("gather.batch", batch),
		attribute.Int64("gather.count", count),
	))
}

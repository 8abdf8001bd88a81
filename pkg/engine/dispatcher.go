package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polisai/polis-chain/internal/governance"
	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency bounds the number of deliveries in flight at once.
const DefaultMaxConcurrency = 64

// Dispatcher delivers the events of a plan. Detached deliveries are started
// and forgotten; awaited deliveries are joined before returning.
type Dispatcher struct {
	sender  domain.Sender
	logger  *slog.Logger
	metrics *telemetry.DispatchMetrics
	tracer  trace.Tracer
	limit   int
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

// DispatcherConfig holds dependencies for creating a Dispatcher.
type DispatcherConfig struct {
	Sender         domain.Sender
	Logger         *slog.Logger
	Metrics        *telemetry.DispatchMetrics
	MaxConcurrency int
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("%w: dispatcher needs a sender", domain.ErrConfigInvalid)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}

	return &Dispatcher{
		sender:  cfg.Sender,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer(telemetry.TracerName),
		limit:   limit,
		sem:     semaphore.NewWeighted(int64(limit)),
	}, nil
}

// Dispatch starts every delivery of plan and returns immediately. Each
// delivery runs detached from ctx cancellation; failures are logged and
// dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, plan domain.Plan) {
	detached := context.WithoutCancel(ctx)
	total := len(plan.Deliveries)
	for i, delivery := range plan.Deliveries {
		d.wg.Add(1)
		d.metrics.DeliveryStarted()
		go func(n int, delivery domain.Delivery) {
			defer d.wg.Done()
			if err := d.sem.Acquire(detached, 1); err != nil {
				d.metrics.DeliveryFinished(telemetry.ModeDetached, telemetry.OutcomeFailed, 0)
				return
			}
			defer d.sem.Release(1)

			if err := d.deliver(detached, telemetry.ModeDetached, n, total, delivery); err != nil {
				d.logger.Warn("dropping undeliverable event",
					"destination", delivery.Destination,
					"event_id", delivery.Event.ID,
					"error", err,
				)
			}
		}(i+1, delivery)
	}
}

// DispatchAndWait performs every delivery and returns once all of them have
// finished. The returned error joins every failed delivery.
func (d *Dispatcher) DispatchAndWait(ctx context.Context, deliveries ...domain.Delivery) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(d.limit)

	total := len(deliveries)
	for i, delivery := range deliveries {
		d.metrics.DeliveryStarted()
		n := i + 1
		g.Go(func() error {
			if err := d.deliver(ctx, telemetry.ModeAwaited, n, total, delivery); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Drain waits for detached deliveries still in flight, or for ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatcher: %w", ctx.Err())
	}
}

func (d *Dispatcher) deliver(ctx context.Context, mode string, n, total int, delivery domain.Delivery) error {
	ctx, span := d.tracer.Start(ctx, "chain.deliver", trace.WithAttributes(
		attribute.String("delivery.destination", delivery.Destination),
		attribute.String("delivery.mode", mode),
		attribute.String("event.id", delivery.Event.ID),
		attribute.String("event.source", delivery.Event.Source),
	))
	defer span.End()

	d.logger.Info("posting event",
		"delivery", n,
		"deliveries", total,
		"destination", delivery.Destination,
		"mode", mode,
		"event", delivery.Event.String(),
	)

	start := time.Now()
	err := d.sender.Send(ctx, delivery.Destination, delivery.Event)
	duration := time.Since(start)

	outcome := telemetry.OutcomeDelivered
	switch {
	case errors.Is(err, governance.ErrCircuitOpen):
		outcome = telemetry.OutcomeCircuitOpen
	case err != nil:
		outcome = telemetry.OutcomeFailed
	}
	d.metrics.DeliveryFinished(mode, outcome, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return fmt.Errorf("post event %s to %s: %w", delivery.Event.ID, delivery.Destination, err)
	}
	return nil
}

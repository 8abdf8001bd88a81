package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/engine/runtime"
	"github.com/polisai/polis-chain/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFanOutScale is the number of events produced by a fan-out.
const DefaultFanOutScale = 5

// DefaultFanOutDestination is written into the type attribute of every fan-out copy.
const DefaultFanOutDestination = "http://two-to-three-kn-channel.chaining-test.svc.cluster.local"

// Router executes the step an inbound event points at and turns the result
// into a dispatch plan. It holds no per-event state.
type Router struct {
	handler    runtime.StepHandler
	gather     *GatherCounter
	scale      int
	fanOutDest string
	logger     *slog.Logger
	metrics    *telemetry.DispatchMetrics
	tracer     trace.Tracer
	clock      func() time.Time
}

// RouterConfig holds dependencies for creating a Router.
type RouterConfig struct {
	// Handler runs the work of each step. Nil selects runtime.Noop.
	Handler runtime.StepHandler
	// Gather counts convergent executions. Nil creates an in-memory counter
	// sized by FanOutScale.
	Gather *GatherCounter
	// FanOutScale is the total number of events a fan-out produces.
	FanOutScale int
	// FanOutDestination replaces the type attribute of fan-out copies. Empty
	// keeps the inbound type.
	FanOutDestination string
	Logger            *slog.Logger
	Metrics           *telemetry.DispatchMetrics
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.FanOutScale < 1 {
		return nil, fmt.Errorf("%w: fan-out scale must be at least 1, got %d", domain.ErrConfigInvalid, cfg.FanOutScale)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := cfg.Handler
	if handler == nil {
		handler = runtime.Noop
	}

	gather := cfg.Gather
	if gather == nil {
		var err error
		gather, err = NewGatherCounter(GatherCounterConfig{Scale: cfg.FanOutScale, Logger: logger})
		if err != nil {
			return nil, err
		}
	} else if gather.Scale() != cfg.FanOutScale {
		return nil, fmt.Errorf("%w: gather scale %d does not match fan-out scale %d",
			domain.ErrConfigInvalid, gather.Scale(), cfg.FanOutScale)
	}

	return &Router{
		handler:    handler,
		gather:     gather,
		scale:      cfg.FanOutScale,
		fanOutDest: cfg.FanOutDestination,
		logger:     logger,
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer(telemetry.TracerName),
		clock:      time.Now,
	}, nil
}

// FanOutScale returns the configured fan-out scale.
func (r *Router) FanOutScale() int {
	return r.scale
}

// Gather returns the router's scatter-gather counter.
func (r *Router) Gather() *GatherCounter {
	return r.gather
}

// Route runs one routing pass. On error no plan is returned and nothing may
// be forwarded.
func (r *Router) Route(ctx context.Context, in domain.Event) (domain.Plan, error) {
	ctx, span := r.tracer.Start(ctx, "chain.route", trace.WithAttributes(
		attribute.String("event.id", in.ID),
		attribute.String("event.source", in.Source),
		attribute.String("event.type", in.Type),
	))
	defer span.End()

	t, err := Resolve(in.Source)
	if err != nil {
		r.logger.Error("routing failed", "source", in.Source, "event_id", in.ID, "error", err)
		telemetry.RecordRoutingFailure(ctx, "unrecognised_source")
		span.RecordError(err)
		span.SetStatus(codes.Error, "unrecognised source")
		return domain.Plan{}, err
	}

	if err := r.checkAddressable(t, in); err != nil {
		r.logger.Error("routing failed", "source", in.Source, "event_id", in.ID, "error", err)
		telemetry.RecordRoutingFailure(ctx, "missing_destination")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing destination")
		return domain.Plan{}, err
	}

	if t.Executes {
		if err := r.execute(ctx, t, in); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			return domain.Plan{}, err
		}
	} else {
		r.logger.Info("event already terminal", "source", in.Source, "event_id", in.ID)
	}

	if t.Converges {
		if _, err := r.gather.Observe(ctx); err != nil {
			r.logger.Warn("gather counter unavailable", "error", err)
		}
	}

	out := in.WithSource(t.Next.String())
	plan := r.buildPlan(t, in, out)

	span.SetAttributes(
		attribute.String("route.next_source", out.Source),
		attribute.String("route.policy", string(plan.Policy)),
		attribute.Int("route.deliveries", len(plan.Deliveries)),
	)
	r.metrics.RecordRouted(out.Source, string(plan.Policy))

	return plan, nil
}

func (r *Router) execute(ctx context.Context, t Transition, in domain.Event) error {
	r.logger.Info("executing step",
		"step", t.Executed.String(),
		"from", t.Current.String(),
		"event", in.String(),
	)

	ctx, span := r.tracer.Start(ctx, "chain.step", trace.WithAttributes(
		attribute.String("step.name", t.Executed.String()),
	))
	defer span.End()

	start := r.clock()
	err := r.handler.Execute(ctx, t.Executed, in)
	duration := r.clock().Sub(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	telemetry.RecordStepMetrics(ctx, telemetry.StepMetrics{
		Step:     t.Executed.String(),
		Source:   in.Source,
		Outcome:  outcome,
		Duration: duration,
	})

	if err != nil {
		r.logger.Error("step failed", "step", t.Executed.String(), "event_id", in.ID, "error", err)
		return fmt.Errorf("%w: %s: %w", domain.ErrStepFailed, t.Executed, err)
	}
	return nil
}

// checkAddressable rejects events whose policy needs a destination the event
// does not carry, before any work is done.
func (r *Router) checkAddressable(t Transition, in domain.Event) error {
	switch t.Policy {
	case domain.PolicyFanOut:
		if r.scale > 1 && in.Type == "" {
			return fmt.Errorf("%w: fan-out from %q needs a type attribute", domain.ErrInvalidEvent, in.Source)
		}
	case domain.PolicyForward:
		if in.Type == "" {
			return fmt.Errorf("%w: forward from %q needs a type attribute", domain.ErrInvalidEvent, in.Source)
		}
	}
	return nil
}

func (r *Router) buildPlan(t Transition, in, out domain.Event) domain.Plan {
	switch t.Policy {
	case domain.PolicyFanOut:
		return r.fanOut(in.Type, out)
	case domain.PolicyForward:
		return domain.Plan{
			Primary:    out,
			Policy:     domain.PolicyForward,
			Deliveries: []domain.Delivery{{Destination: out.Type, Event: out}},
		}
	default:
		return domain.Plan{Primary: out, Policy: domain.PolicyTerminal}
	}
}

// fanOut posts scale-1 copies to dest and keeps copy "0" as the primary.
// Every copy carries the fan-out destination in its type attribute.
func (r *Router) fanOut(dest string, out domain.Event) domain.Plan {
	scaled := out
	if r.fanOutDest != "" {
		scaled = out.WithType(r.fanOutDest)
	}

	r.logger.Info("fanning out", "scale", r.scale, "destination", dest)

	deliveries := make([]domain.Delivery, 0, r.scale-1)
	for i := 1; i < r.scale; i++ {
		deliveries = append(deliveries, domain.Delivery{
			Destination: dest,
			Event:       scaled.WithID(strconv.Itoa(i)),
		})
	}

	return domain.Plan{
		Primary:    scaled.WithID(domain.PrimaryEventID),
		Policy:     domain.PolicyFanOut,
		Deliveries: deliveries,
	}
}

// IsRoutingError reports whether err means the event named no known step.
func IsRoutingError(err error) bool {
	return errors.Is(err, domain.ErrUnrecognisedSource)
}

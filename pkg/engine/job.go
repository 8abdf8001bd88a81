package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polisai/polis-chain/pkg/cloudevent"
	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/jobsink"
)

// TriggerReader loads the serialized trigger event from a location.
type TriggerReader func(ctx context.Context, location string) ([]byte, error)

// JobRunner handles a single trigger event and returns once every post it
// caused has completed.
type JobRunner struct {
	router     *Router
	dispatcher *Dispatcher
	location   string
	read       TriggerReader
	logger     *slog.Logger
}

// JobRunnerConfig holds dependencies for creating a JobRunner.
type JobRunnerConfig struct {
	Router     *Router
	Dispatcher *Dispatcher
	// Location of the trigger payload. Empty selects jobsink.DefaultLocation.
	Location string
	// Read loads the payload. Nil selects jobsink.Read.
	Read   TriggerReader
	Logger *slog.Logger
}

// NewJobRunner creates a JobRunner.
func NewJobRunner(cfg JobRunnerConfig) (*JobRunner, error) {
	if cfg.Router == nil || cfg.Dispatcher == nil {
		return nil, fmt.Errorf("%w: job runner needs a router and a dispatcher", domain.ErrConfigInvalid)
	}

	location := cfg.Location
	if location == "" {
		location = jobsink.DefaultLocation
	}
	read := cfg.Read
	if read == nil {
		read = jobsink.Read
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRunner{
		router:     cfg.Router,
		dispatcher: cfg.Dispatcher,
		location:   location,
		read:       read,
		logger:     logger,
	}, nil
}

// Run reads, routes and delivers the trigger event. Any failure is returned;
// the caller is expected to exit non-zero.
func (j *JobRunner) Run(ctx context.Context) error {
	j.logger.Info("reading trigger event", "location", j.location)

	payload, err := j.read(ctx, j.location)
	if err != nil {
		return fmt.Errorf("read trigger: %w", err)
	}
	if err := jobsink.Validate(payload); err != nil {
		return fmt.Errorf("validate trigger: %w", err)
	}

	in, err := cloudevent.Decode(payload)
	if err != nil {
		return fmt.Errorf("decode trigger: %w", err)
	}

	plan, err := j.router.Route(ctx, in)
	if err != nil {
		return fmt.Errorf("route trigger: %w", err)
	}

	deliveries := JobDeliveries(plan)
	if err := j.dispatcher.DispatchAndWait(ctx, deliveries...); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}

	j.logger.Info("job complete",
		"event_id", plan.Primary.ID,
		"source", plan.Primary.Source,
		"policy", string(plan.Policy),
		"deliveries", len(deliveries),
	)
	return nil
}

// JobDeliveries lists every post a job performs for plan: the plan's own
// deliveries followed by the primary event posted to its type, unless a
// delivery already is that post or the primary carries no type.
func JobDeliveries(plan domain.Plan) []domain.Delivery {
	deliveries := make([]domain.Delivery, 0, len(plan.Deliveries)+1)
	deliveries = append(deliveries, plan.Deliveries...)
	if plan.Primary.Type == "" {
		return deliveries
	}

	primary := domain.Delivery{Destination: plan.Primary.Type, Event: plan.Primary}
	for _, d := range plan.Deliveries {
		if d.Destination == primary.Destination && d.Event.ID == primary.Event.ID {
			return deliveries
		}
	}
	return append(deliveries, primary)
}

package engine

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/engine/runtime"
)

// Default simulated work per step.
const (
	DefaultStepOneDelay   = 3000 * time.Millisecond
	DefaultStepTwoDelay   = 10000 * time.Millisecond
	DefaultStepThreeDelay = 500 * time.Millisecond
)

// DefaultDelays returns the simulated work durations used when none are configured.
func DefaultDelays() map[domain.Step]time.Duration {
	return map[domain.Step]time.Duration{
		domain.StepOne:   DefaultStepOneDelay,
		domain.StepTwo:   DefaultStepTwoDelay,
		domain.StepThree: DefaultStepThreeDelay,
	}
}

// DelayHandler stands in for real step logic by blocking for a configured
// duration. Delays can be swapped at runtime by a configuration reload.
type DelayHandler struct {
	mu     sync.RWMutex
	delays map[domain.Step]time.Duration
	logger *slog.Logger
}

// NewDelayHandler creates a DelayHandler. Steps missing from delays run instantly.
func NewDelayHandler(delays map[domain.Step]time.Duration, logger *slog.Logger) *DelayHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DelayHandler{delays: maps.Clone(delays), logger: logger}
}

// SetDelays replaces the configured delays.
func (h *DelayHandler) SetDelays(delays map[domain.Step]time.Duration) {
	h.mu.Lock()
	h.delays = maps.Clone(delays)
	h.mu.Unlock()
}

// Delay returns the delay configured for step.
func (h *DelayHandler) Delay(step domain.Step) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.delays[step]
}

// Execute blocks for the step's delay. It returns early only if ctx ends.
func (h *DelayHandler) Execute(ctx context.Context, step domain.Step, event domain.Event) error {
	d := h.Delay(step)
	h.logger.Debug("simulating step work", "step", step.String(), "event_id", event.ID, "delay", d)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepRegistry routes each step to the handler registered for it. Steps
// without a registration fall back to the default handler.
type StepRegistry struct {
	mu       sync.RWMutex
	handlers map[domain.Step]runtime.StepHandler
	fallback runtime.StepHandler
}

// NewStepRegistry creates a registry using fallback for unregistered steps.
// A nil fallback selects runtime.Noop.
func NewStepRegistry(fallback runtime.StepHandler) *StepRegistry {
	if fallback == nil {
		fallback = runtime.Noop
	}
	return &StepRegistry{
		handlers: make(map[domain.Step]runtime.StepHandler),
		fallback: fallback,
	}
}

// Register binds handler to step, replacing any earlier registration.
func (r *StepRegistry) Register(step domain.Step, handler runtime.StepHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[step] = handler
}

// Resolve returns the handler for step and whether it was explicitly registered.
func (r *StepRegistry) Resolve(step domain.Step) (runtime.StepHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[step]; ok {
		return h, true
	}
	return r.fallback, false
}

// Execute runs the handler resolved for step.
func (r *StepRegistry) Execute(ctx context.Context, step domain.Step, event domain.Event) error {
	h, _ := r.Resolve(step)
	return h.Execute(ctx, step, event)
}

// Package runtime defines the contract between the router and the units of
// work it executes for each step, keeping domain logic decoupled from routing
// mechanics.
package runtime

import (
	"context"

	"github.com/polisai/polis-chain/pkg/domain"
)

// StepHandler performs the work of one chain step. It receives the inbound
// event read-only; routing rewrites attributes after the handler returns.
// Execution is synchronous and occupies the calling goroutine.
type StepHandler interface {
	Execute(ctx context.Context, step domain.Step, event domain.Event) error
}

// StepFunc adapts a function to the StepHandler interface.
type StepFunc func(ctx context.Context, step domain.Step, event domain.Event) error

// Execute calls f.
func (f StepFunc) Execute(ctx context.Context, step domain.Step, event domain.Event) error {
	return f(ctx, step, event)
}

type noop struct{}

func (noop) Execute(context.Context, domain.Step, domain.Event) error { return nil }

// Noop is a StepHandler that does nothing. It is comparable with ==.
var Noop StepHandler = noop{}

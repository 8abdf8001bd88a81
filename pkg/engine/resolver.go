package engine

import (
	"fmt"

	"github.com/polisai/polis-chain/pkg/domain"
)

// Transition describes one move through the chain.
type Transition struct {
	// Current is the step named by the inbound source attribute.
	Current domain.Step
	// Executed is the step whose work runs during this pass. It is only
	// meaningful when Executes is true.
	Executed domain.Step
	// Next is the step written into the outbound source attribute.
	Next domain.Step
	// Policy selects how the resulting event is dispatched.
	Policy domain.DispatchPolicy
	// Executes is false when the inbound event is already terminal.
	Executes bool
	// Converges marks the step that counts toward the scatter-gather batch.
	Converges bool
}

var transitions = map[domain.Step]Transition{
	domain.StepEntry: {
		Current:  domain.StepEntry,
		Executed: domain.StepOne,
		Next:     domain.StepOne,
		Policy:   domain.PolicyFanOut,
		Executes: true,
	},
	domain.StepOne: {
		Current:  domain.StepOne,
		Executed: domain.StepTwo,
		Next:     domain.StepTwo,
		Policy:   domain.PolicyForward,
		Executes: true,
	},
	domain.StepTwo: {
		Current:   domain.StepTwo,
		Executed:  domain.StepThree,
		Next:      domain.StepThree,
		Policy:    domain.PolicyTerminal,
		Executes:  true,
		Converges: true,
	},
	domain.StepThree: {
		Current: domain.StepThree,
		Next:    domain.StepThree,
		Policy:  domain.PolicyTerminal,
	},
}

// Resolve maps an inbound source attribute onto its transition. It is pure:
// the same source always yields the same transition. Unknown sources return
// an error wrapping domain.ErrUnrecognisedSource.
func Resolve(source string) (Transition, error) {
	step, err := domain.ParseStep(source)
	if err != nil {
		return Transition{}, err
	}
	t, ok := transitions[step]
	if !ok {
		return Transition{}, fmt.Errorf("%w: no transition from %q", domain.ErrUnrecognisedSource, source)
	}
	return t, nil
}

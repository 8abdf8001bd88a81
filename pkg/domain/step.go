package domain

import "fmt"

// Step identifies a position in the chain. The zero value is not a valid step.
type Step int

const (
	stepUnknown Step = iota
	// StepEntry is the external trigger that starts a chain.
	StepEntry
	// StepOne fans the event out to the second step.
	StepOne
	// StepTwo is the intermediate hop that forwards a single event.
	StepTwo
	// StepThree is the convergent step that closes the chain.
	StepThree
)

var stepNames = map[Step]string{
	StepEntry: "cli",
	StepOne:   "step-one",
	StepTwo:   "step-two",
	StepThree: "step-three",
}

var stepsByName = map[string]Step{
	"cli":        StepEntry,
	"step-one":   StepOne,
	"step-two":   StepTwo,
	"step-three": StepThree,
}

// ParseStep maps an event source attribute onto a step.
func ParseStep(source string) (Step, error) {
	step, ok := stepsByName[source]
	if !ok {
		return stepUnknown, fmt.Errorf("%w: %q", ErrUnrecognisedSource, source)
	}
	return step, nil
}

// Steps returns every valid step in chain order.
func Steps() []Step {
	return []Step{StepEntry, StepOne, StepTwo, StepThree}
}

// String returns the source attribute value for the step.
func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is a member of the enumeration.
func (s Step) Valid() bool {
	_, ok := stepNames[s]
	return ok
}

package domain

import "context"

// DispatchPolicy says what the dispatcher must do after a step ran.
type DispatchPolicy string

const (
	// PolicyFanOut scatters N-1 copies and returns the primary copy to the caller.
	PolicyFanOut DispatchPolicy = "fan-out"
	// PolicyForward posts the single resulting event to its own Type.
	PolicyForward DispatchPolicy = "forward"
	// PolicyTerminal ends the chain without posting anything.
	PolicyTerminal DispatchPolicy = "terminal"
)

// PrimaryEventID is the id reserved for the copy returned to the caller on fan-out.
const PrimaryEventID = "0"

// Delivery is one outbound post of an event to a destination address.
type Delivery struct {
	Destination string
	Event       Event
}

// Plan is the outcome of a routing pass: the event to hand back to the
// caller and the deliveries the dispatcher must perform.
type Plan struct {
	Primary    Event
	Policy     DispatchPolicy
	Deliveries []Delivery
}

// Sender performs the network send of one event to one destination.
type Sender interface {
	Send(ctx context.Context, destination string, event Event) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, destination string, event Event) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, destination string, event Event) error {
	return f(ctx, destination, event)
}

// CounterStore holds the shared scatter-gather count.
type CounterStore interface {
	// Incr atomically increments the count and returns the new value.
	Incr(ctx context.Context) (int64, error)
	// Value returns the current count.
	Value(ctx context.Context) (int64, error)
}

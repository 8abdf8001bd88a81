package governance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeliveryTimeout is returned when a post exceeds its deadline.
var ErrDeliveryTimeout = errors.New("delivery timeout exceeded")

// DefaultDeliveryTimeout bounds a single outbound post.
const DefaultDeliveryTimeout = 30 * time.Second

// WithTimeout runs fn under a deadline of d. A non-positive d selects
// DefaultDeliveryTimeout. A deadline hit is reported as ErrDeliveryTimeout.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		d = DefaultDeliveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrDeliveryTimeout, d, err)
	}
	return err
}

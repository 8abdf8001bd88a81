package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutReportsDeadline(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutPassesThroughResult(t *testing.T) {
	require.NoError(t, WithTimeout(context.Background(), time.Second, func(context.Context) error { return nil }))

	err := WithTimeout(context.Background(), time.Second, func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrDeliveryTimeout)
}

func TestWithTimeoutDefaultsNonPositiveDuration(t *testing.T) {
	err := WithTimeout(context.Background(), 0, func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(DefaultDeliveryTimeout), deadline, time.Second)
		return nil
	})
	require.NoError(t, err)
}

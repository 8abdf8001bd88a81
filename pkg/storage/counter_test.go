package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-chain/pkg/domain"
)

var (
	_ domain.CounterStore = (*MemoryCounter)(nil)
	_ domain.CounterStore = (*RedisCounter)(nil)
)

func incrConcurrently(t *testing.T, store domain.CounterStore, workers, perWorker int) {
	t.Helper()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := store.Incr(context.Background())
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestMemoryCounterIsSharedAcrossGoroutines(t *testing.T) {
	c := NewMemoryCounter()

	incrConcurrently(t, c, 8, 50)

	n, err := c.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(400), n)
}

func TestRedisCounterIncrements(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCounter(ctx, RedisCounterConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	n, err := c.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = c.Incr(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := mr.Get(DefaultCounterKey)
	require.NoError(t, err)
	assert.Equal(t, "1", raw)
}

func TestRedisCounterSharedBetweenClients(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cfg := RedisCounterConfig{Addr: mr.Addr(), Key: "chain:test"}

	a, err := NewRedisCounter(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewRedisCounter(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	incrConcurrently(t, a, 4, 5)
	incrConcurrently(t, b, 4, 5)

	n, err := a.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), n)
}

func TestNewRedisCounterRequiresAddress(t *testing.T) {
	_, err := NewRedisCounter(context.Background(), RedisCounterConfig{})
	require.Error(t, err)
}

func TestNewRedisCounterFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCounter(context.Background(), RedisCounterConfig{Addr: addr})
	require.Error(t, err)
}

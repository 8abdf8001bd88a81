package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/storage"
	"github.com/polisai/polis-chain/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// GatherCounter counts executions of the convergent step and signals when a
// fan-out batch has fully arrived.
//
// The count is never reset. A batch completes every time the count reaches a
// multiple of the fan-out scale, so one batch of N copies signals exactly once
// and later batches keep signalling on the same counter.
type GatherCounter struct {
	store   domain.CounterStore
	scale   int64
	logger  *slog.Logger
	onBatch func(ctx context.Context, batch int64)
}

// GatherCounterConfig holds dependencies for creating a GatherCounter.
type GatherCounterConfig struct {
	Store           domain.CounterStore
	Scale           int
	Logger          *slog.Logger
	OnBatchComplete func(ctx context.Context, batch int64)
}

// GatherResult reports one observation of the convergent step.
type GatherResult struct {
	Count    int64
	Batch    int64
	Complete bool
}

// NewGatherCounter creates a counter. A nil store selects the in-memory store.
func NewGatherCounter(cfg GatherCounterConfig) (*GatherCounter, error) {
	if cfg.Scale < 1 {
		return nil, fmt.Errorf("%w: fan-out scale must be at least 1, got %d", domain.ErrConfigInvalid, cfg.Scale)
	}
	store := cfg.Store
	if store == nil {
		store = storage.NewMemoryCounter()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GatherCounter{
		store:   store,
		scale:   int64(cfg.Scale),
		logger:  logger,
		onBatch: cfg.OnBatchComplete,
	}, nil
}

// Observe records one execution of the convergent step.
func (g *GatherCounter) Observe(ctx context.Context) (GatherResult, error) {
	if g == nil {
		return GatherResult{}, errors.New("gather counter is not configured")
	}

	n, err := g.store.Incr(ctx)
	if err != nil {
		return GatherResult{}, fmt.Errorf("increment gather counter: %w", err)
	}

	res := GatherResult{Count: n, Batch: n / g.scale, Complete: n%g.scale == 0}
	position := n % g.scale
	if position == 0 {
		position = g.scale
	}
	g.logger.Info("gather counted", "position", position, "scale", g.scale, "total", n)
	telemetry.RecordGather(ctx, res.Complete)

	if res.Complete {
		g.logger.Info("gather batch complete", "batch", res.Batch, "total", n)
		telemetry.RecordBatchEvent(trace.SpanFromContext(ctx), res.Batch, n)
		if g.onBatch != nil {
			g.onBatch(ctx, res.Batch)
		}
	}

	return res, nil
}

// Count returns the current total.
func (g *GatherCounter) Count(ctx context.Context) (int64, error) {
	return g.store.Value(ctx)
}

// Scale returns the batch size.
func (g *GatherCounter) Scale() int {
	return int(g.scale)
}

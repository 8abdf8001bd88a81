package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/polisai/polis-chain/pkg/cloudevent"
	"github.com/polisai/polis-chain/pkg/config"
	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/engine"
	"github.com/polisai/polis-chain/pkg/logging"
	"github.com/polisai/polis-chain/pkg/storage"
	"github.com/polisai/polis-chain/pkg/telemetry"
)

// app wires the components shared by service and job mode.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *telemetry.DispatchMetrics
	delays     *engine.DelayHandler
	router     *engine.Router
	dispatcher *engine.Dispatcher
	closers    []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: telemetry.NewDispatchMetrics(),
	}

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdownTelemetry)

	store, err := a.counterStore(ctx)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	gather, err := engine.NewGatherCounter(engine.GatherCounterConfig{
		Store:  store,
		Scale:  cfg.Router.FanOutScale,
		Logger: logger,
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	a.delays = engine.NewDelayHandler(cfg.Router.Delays.Map(), logger)
	a.router, err = engine.NewRouter(engine.RouterConfig{
		Handler:           engine.NewStepRegistry(a.delays),
		Gather:            gather,
		FanOutScale:       cfg.Router.FanOutScale,
		FanOutDestination: cfg.Router.FanOutDestination,
		Logger:            logger,
		Metrics:           a.metrics,
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	sender := cloudevent.NewHTTPSender(cloudevent.HTTPSenderConfig{
		Timeout: cfg.Dispatch.Timeout,
		Breaker: cfg.Dispatch.Breaker.Governance(),
		Logger:  logger,
	})
	a.dispatcher, err = engine.NewDispatcher(engine.DispatcherConfig{
		Sender:         sender,
		Logger:         logger,
		Metrics:        a.metrics,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	return a, nil
}

func (a *app) counterStore(ctx context.Context) (domain.CounterStore, error) {
	if a.cfg.Counter.Backend != config.BackendRedis {
		return storage.NewMemoryCounter(), nil
	}

	redisCfg := a.cfg.Counter.Redis
	counter, err := storage.NewRedisCounter(ctx, storage.RedisCounterConfig{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
		Key:      redisCfg.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("connect gather counter: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return counter.Close() })
	a.logger.Info("gather counter in redis", "addr", redisCfg.Addr, "key", redisCfg.Key)
	return counter, nil
}

// applyReload applies the live-reloadable parts of next, or rejects it.
func (a *app) applyReload(next *config.Config, level *slog.LevelVar) error {
	if err := config.CheckReload(a.cfg, next); err != nil {
		a.metrics.RecordConfigReload("rejected")
		return err
	}

	a.delays.SetDelays(next.Router.Delays.Map())
	if level != nil {
		level.Set(logging.ParseLevel(next.Logging.Level))
	}
	a.metrics.RecordConfigReload("applied")
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

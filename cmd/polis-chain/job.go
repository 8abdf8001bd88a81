package main

import (
	"context"
	"log/slog"

	"github.com/polisai/polis-chain/pkg/config"
	"github.com/polisai/polis-chain/pkg/engine"
)

func runJob(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Flushes buffered spans of the final post.
	defer func() {
		if closeErr := a.close(context.Background()); closeErr != nil {
			logger.Error("shutdown error", "error", closeErr)
		}
	}()

	runner, err := engine.NewJobRunner(engine.JobRunnerConfig{
		Router:     a.router,
		Dispatcher: a.dispatcher,
		Location:   cfg.Job.TriggerLocation,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("running job", "trigger", cfg.Job.TriggerLocation)
	return runner.Run(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-chain/pkg/config"
	"github.com/polisai/polis-chain/pkg/engine"
)

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:   configPath,
			Logger: logger,
			Override: func(next *config.Config) error {
				return applyFlagOverrides(cmd, next)
			},
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer func() { _ = watcher.Close() }()
		go watchConfig(watcher.Subscribe(), a, level, logger)
	}

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("bind listener %s: %w", cfg.Server.ListenAddress, err)
	}

	server := &http.Server{
		Handler:      newServeMux(a, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logger.Info("server listening",
		"addr", listener.Addr().String(),
		"fan_out_scale", cfg.Router.FanOutScale,
		"counter", cfg.Counter.Backend,
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := a.dispatcher.Drain(shutdownCtx); err != nil {
		logger.Warn("detached deliveries still in flight at exit", "error", err)
	}
	return nil
}

// newServeMux exposes the router, health and metrics endpoints.
func newServeMux(a *app, logger *slog.Logger) http.Handler {
	handler := engine.NewRouterHandler(engine.RouterHandlerConfig{
		Router:     a.router,
		Dispatcher: a.dispatcher,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/", otelhttp.NewHandler(handler, "polis.chain"))
	return mux
}

func watchConfig(updates <-chan *config.Config, a *app, level *slog.LevelVar, logger *slog.Logger) {
	for next := range updates {
		if err := a.applyReload(next, level); err != nil {
			logger.Warn("configuration change rejected", "error", err)
			continue
		}
		logger.Info("configuration applied",
			"step_one_delay", next.Router.Delays.StepOne,
			"step_two_delay", next.Router.Delays.StepTwo,
			"step_three_delay", next.Router.Delays.StepThree,
			"log_level", next.Logging.Level,
		)
	}
}

package cloudevent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-chain/internal/governance"
	"github.com/polisai/polis-chain/pkg/domain"
)

// HTTPSender posts events to destination URLs.
type HTTPSender struct {
	client   *http.Client
	timeout  time.Duration
	breakers *governance.BreakerSet
	logger   *slog.Logger
}

// HTTPSenderConfig holds dependencies for creating an HTTPSender.
type HTTPSenderConfig struct {
	// Client performs the request. Nil selects a client with an otelhttp transport.
	Client  *http.Client
	Timeout time.Duration
	Breaker governance.BreakerConfig
	Logger  *slog.Logger
}

// NewHTTPSender creates an HTTPSender.
func NewHTTPSender(cfg HTTPSenderConfig) *HTTPSender {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = governance.DefaultDeliveryTimeout
	}

	return &HTTPSender{
		client:   client,
		timeout:  timeout,
		breakers: governance.NewBreakerSet(cfg.Breaker),
		logger:   logger,
	}
}

// Send posts event to destination. Any response body is discarded.
func (s *HTTPSender) Send(ctx context.Context, destination string, event domain.Event) error {
	_, _, err := s.Request(ctx, destination, event)
	return err
}

// Request posts event to destination and returns the reply event if the
// destination answered with one.
func (s *HTTPSender) Request(ctx context.Context, destination string, event domain.Event) (domain.Event, bool, error) {
	if destination == "" {
		return domain.Event{}, false, fmt.Errorf("%w: empty destination", domain.ErrDeliveryFailed)
	}

	var (
		reply    domain.Event
		hasReply bool
	)
	err := s.breakers.Get(destination).Execute(ctx, func(ctx context.Context) error {
		return governance.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
			var err error
			reply, hasReply, err = s.post(ctx, destination, event)
			return err
		})
	})
	if err != nil {
		return domain.Event{}, false, fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	return reply, hasReply, nil
}

// Breakers exposes the per-destination breakers.
func (s *HTTPSender) Breakers() *governance.BreakerSet {
	return s.breakers
}

func (s *HTTPSender) post(ctx context.Context, destination string, event domain.Event) (domain.Event, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, nil)
	if err != nil {
		return domain.Event{}, false, fmt.Errorf("build request: %w", err)
	}
	if err := WriteRequest(ctx, req, event); err != nil {
		return domain.Event{}, false, fmt.Errorf("encode event: %w", err)
	}
	req.Header.Set("Access-Control-Allow-Origin", "*")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Event{}, false, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Event{}, false, fmt.Errorf("%s responded %d", destination, resp.StatusCode)
	}

	reply, ok := FromResponse(resp)
	s.logger.Debug("event posted", "destination", destination, "event_id", event.ID, "status", resp.StatusCode, "reply", ok)
	return reply, ok, nil
}

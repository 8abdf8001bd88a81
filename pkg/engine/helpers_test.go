package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/polisai/polis-chain/pkg/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSender stands in for downstream sinks.
type recordingSender struct {
	mu    sync.Mutex
	posts []domain.Delivery
	fail  map[string]error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{fail: map[string]error{}}
}

func (s *recordingSender) Send(_ context.Context, destination string, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[destination]; ok {
		return err
	}
	s.posts = append(s.posts, domain.Delivery{Destination: destination, Event: event})
	return nil
}

func (s *recordingSender) Posts() []domain.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Delivery(nil), s.posts...)
}

func cliEvent() domain.Event {
	return domain.Event{
		ID:          "abc",
		Source:      "cli",
		Type:        "http://dest-x",
		SpecVersion: domain.DefaultSpecVersion,
		Data:        []byte(`{"n":1}`),
	}
}

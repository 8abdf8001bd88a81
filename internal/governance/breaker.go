package governance

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a destination's breaker rejects a post.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed lets every post through.
	StateClosed BreakerState = "closed"
	// StateOpen rejects posts until the cool-down elapses.
	StateOpen BreakerState = "open"
	// StateHalfOpen lets a limited number of probe posts through.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig defines when a destination is considered unhealthy.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	// Zero disables the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// HalfOpenProbes is the number of successful probes needed to close again.
	HalfOpenProbes int
}

// DefaultBreakerConfig returns the defaults used for outbound posts.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:    5,
		Cooldown:       30 * time.Second,
		HalfOpenProbes: 1,
	}
}

// Breaker implements the circuit breaker pattern for one destination.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     BreakerState
	failures  int
	successes int
	probes    int
	openUntil time.Time
	now       func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Execute runs fn unless the breaker is open, and records its outcome.
// Context cancellation of the caller is not counted as a destination failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release()
		return err
	}
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	if b.cfg.MaxFailures <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.openUntil) {
			return ErrCircuitOpen
		}
		b.transitionLocked(StateHalfOpen)
		b.probes++
		return nil
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrCircuitOpen
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

func (b *Breaker) record(err error) {
	if b.cfg.MaxFailures <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		switch b.state {
		case StateHalfOpen:
			b.transitionLocked(StateOpen)
		case StateClosed:
			if b.failures >= b.cfg.MaxFailures {
				b.transitionLocked(StateOpen)
			}
		}
		return
	}

	b.failures = 0
	b.successes++
	if b.state == StateHalfOpen && b.successes >= b.cfg.HalfOpenProbes {
		b.transitionLocked(StateClosed)
	}
}

func (b *Breaker) transitionLocked(state BreakerState) {
	b.state = state
	b.failures = 0
	b.successes = 0
	b.probes = 0
	if state == StateOpen {
		b.openUntil = b.now().Add(b.cfg.Cooldown)
	} else {
		b.openUntil = time.Time{}
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerSet keeps one breaker per destination address.
type BreakerSet struct {
	mu       sync.RWMutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty set whose breakers share cfg.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for destination, creating it on first use.
func (s *BreakerSet) Get(destination string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[destination]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[destination]; ok {
		return b
	}
	b = NewBreaker(s.cfg)
	s.breakers[destination] = b
	return b
}

// States returns the state of every known destination.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]BreakerState, len(s.breakers))
	for dest, b := range s.breakers {
		out[dest] = b.State()
	}
	return out
}

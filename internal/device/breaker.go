package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rental-thermostat-backend/config"
)

// BreakerState is the circuit state for one thermostat's device endpoint.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a call is rejected without reaching the
// device because the circuit is open and the reset timeout has not elapsed.
var ErrBreakerOpen = errors.New("device circuit open")

// Breaker wraps device calls for a single thermostat. After MaxFailures
// consecutive failures it opens and fast-fails callers until ResetTimeout
// elapses, then lets exactly one call through as a probe.
type Breaker struct {
	cfg    config.BreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

func NewBreaker(cfg config.BreakerConfig, logger zerolog.Logger) *Breaker {
	return &Breaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  BreakerClosed,
	}
}

// Execute runs op under the breaker's admission policy.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.admit() {
		return ErrBreakerOpen
	}

	err := op(ctx)
	if err != nil {
		b.onFailure(err)
		return err
	}
	b.onSuccess()
	return nil
}

// admit decides whether a call may proceed, moving Open to HalfOpen when the
// reset timeout has elapsed.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		// A probe is already in flight; keep fast-failing until it settles.
		return false
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false
		}
		b.state = BreakerHalfOpen
		b.logger.Info().Str("state", b.state.String()).Msg("circuit probing after reset timeout")
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerClosed {
		b.logger.Info().Str("from", b.state.String()).Msg("circuit closed")
	}
	b.state = BreakerClosed
	b.failures = 0
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.logger.Warn().Err(err).Msg("probe failed, circuit reopened")
		return
	}

	b.failures++
	if b.failures >= b.cfg.MaxFailures {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.logger.Warn().Err(err).Int("failures", b.failures).Msg("circuit opened")
	}
}

// State reports the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Package dependency wraps WAVE's external collaborators — LLM provider
// calls and git subprocess invocations — in circuit breakers, so a
// flapping provider or a stuck git process degrades into fast failures
// instead of stalling every worker loop (SPEC_FULL.md §4.14).
package dependency

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

// Settings configures one named breaker. Zero values fall back to
// sensible WAVE defaults: trip after 5 consecutive failures and reopen to
// half-open after 30s.
type Settings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Breaker wraps a gobreaker.CircuitBreaker for a single named dependency
// (e.g. "anthropic", "bedrock", "git"). Results are boxed through
// interface{} because the underlying library predates generics.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New constructs a breaker from Settings.
func New(s Settings) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
	})

	return &Breaker{cb: cb}
}

// Execute runs fn through the breaker. A call rejected because the
// breaker is open surfaces as an ErrorTypeNetwork AppError so callers can
// route it through the same retry/backoff path as any other transient
// failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "circuit breaker open, dependency unavailable")
	}
	return result, err
}

// State reports the breaker's current state for metrics/health endpoints.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

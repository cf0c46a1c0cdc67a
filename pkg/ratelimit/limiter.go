// Package ratelimit enforces the requests-per-minute and tokens-per-minute
// ceilings configured for the RLM subsystem (SPEC_FULL.md §4.16) by
// wrapping an llm.Client so every completion call blocks until both
// budgets admit it, rather than failing outright.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/wavehq/orchestrator/pkg/llm"
	"github.com/wavehq/orchestrator/pkg/rlmconfig"
)

// Limiter holds the two independent token buckets a completion request
// must clear: one counting requests, one counting estimated tokens.
type Limiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewFromConfig builds a Limiter from the configured per-minute ceilings.
// Both buckets refill continuously (limit expressed per-second) with a
// burst equal to the full per-minute allowance, so a quiet period lets a
// caller use up to a minute's budget in one burst rather than being
// throttled to a steady trickle.
func NewFromConfig(cfg rlmconfig.RateLimits) *Limiter {
	return &Limiter{
		requests: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.RequestsPerMinute),
		tokens:   rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60), cfg.TokensPerMinute),
	}
}

// Wait blocks until both the request bucket and the tokens bucket (sized
// by estimatedTokens) admit the call, or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, estimatedTokens int) error {
	if err := l.requests.Wait(ctx); err != nil {
		return fmt.Errorf("request rate limit: %w", err)
	}
	if estimatedTokens <= 0 {
		return nil
	}
	if err := l.tokens.WaitN(ctx, estimatedTokens); err != nil {
		return fmt.Errorf("token rate limit: %w", err)
	}
	return nil
}

// Client wraps an llm.Client, gating every Complete call on a Limiter
// before delegating. estimateTokens sizes the token-bucket reservation
// ahead of the call, since the real count is only known from the response.
type Client struct {
	inner          llm.Client
	limiter        *Limiter
	estimateTokens func(llm.Request) int
}

// NewClient wraps inner so every Complete call is rate-limited by limiter.
// estimateTokens may be nil, in which case only the request bucket is
// enforced and the token bucket is skipped entirely.
func NewClient(inner llm.Client, limiter *Limiter, estimateTokens func(llm.Request) int) *Client {
	return &Client{inner: inner, limiter: limiter, estimateTokens: estimateTokens}
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	estimated := 0
	if c.estimateTokens != nil {
		estimated = c.estimateTokens(req)
	}
	if err := c.limiter.Wait(ctx, estimated); err != nil {
		return llm.Response{}, err
	}
	return c.inner.Complete(ctx, req)
}

var _ llm.Client = (*Client)(nil)

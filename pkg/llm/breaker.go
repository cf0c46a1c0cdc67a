package llm

import (
	"context"

	"github.com/wavehq/orchestrator/pkg/orchestration/dependency"
)

// BreakerClient wraps any Client in a per-provider circuit breaker
// (SPEC_FULL.md §4.14): once the wrapped client trips, calls fail fast
// with an ErrorTypeNetwork AppError instead of piling up against a
// degraded provider.
type BreakerClient struct {
	inner   Client
	breaker *dependency.Breaker
}

// NewBreakerClient wraps inner with a named circuit breaker.
func NewBreakerClient(name string, inner Client) *BreakerClient {
	return &BreakerClient{inner: inner, breaker: dependency.New(dependency.Settings{Name: name})}
}

func (c *BreakerClient) Complete(ctx context.Context, req Request) (Response, error) {
	result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.inner.Complete(ctx, req)
	})
	if err != nil {
		return Response{}, err
	}
	return result.(Response), nil
}

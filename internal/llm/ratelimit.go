package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token-bucket limiter so the relay
// cannot exceed the generation API's request budget. Generate blocks until a
// token is available or ctx is done.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with a limit of rpm requests per minute.
func NewRateLimited(p Provider, rpm int) *RateLimited {
	if rpm < 1 {
		rpm = 1
	}
	return &RateLimited{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}
}

// Name returns the wrapped provider's identifier.
func (r *RateLimited) Name() string {
	return r.inner.Name()
}

// Generate waits for the limiter, then delegates to the wrapped provider.
func (r *RateLimited) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("generation rate limit: %w", err)
	}
	return r.inner.Generate(ctx, req)
}

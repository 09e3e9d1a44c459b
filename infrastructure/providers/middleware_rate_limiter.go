package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// rateLimitedProvider paces Search calls with a token bucket so a single
// comparison fan-out cannot overrun a back-end's request quota.
type rateLimitedProvider struct {
	next    ports.Provider
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces a sustained
// request rate with the given burst allowance.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.Provider) ports.Provider {
		return &rateLimitedProvider{next: next, limiter: limiter}
	}
}

// Search waits for a token before forwarding the call. The wait respects
// context cancellation.
func (r *rateLimitedProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Search(ctx, query, topK)
}

// Name returns the wrapped provider's instance name.
func (r *rateLimitedProvider) Name() string { return r.next.Name() }

// ValidateConfig delegates to the wrapped provider.
func (r *rateLimitedProvider) ValidateConfig() error { return r.next.ValidateConfig() }

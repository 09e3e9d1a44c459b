package providers

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// Default retry parameters for transient back-end failures.
const (
	DefaultRetryBaseDelay = 200 * time.Millisecond
	DefaultRetryMaxDelay  = 5 * time.Second
)

// retryProvider retries transient Search failures with exponential
// backoff. Only errors the provider error model marks retryable are
// attempted again; authentication and validation failures surface
// immediately.
type retryProvider struct {
	next       ports.Provider
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that retries failed Search calls.
// Zero or negative maxRetries disables the wrapper.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next ports.Provider) ports.Provider {
		if maxRetries <= 0 {
			return next
		}
		if baseDelay <= 0 {
			baseDelay = DefaultRetryBaseDelay
		}
		if maxDelay <= 0 {
			maxDelay = DefaultRetryMaxDelay
		}
		return &retryProvider{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Search retries the wrapped call until it succeeds, the error is not
// retryable, the context ends, or the attempt budget is spent.
func (r *retryProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		chunks, err := r.next.Search(ctx, query, topK)
		if err == nil {
			return chunks, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
	return nil, lastErr
}

// backoff computes the exponential delay for an attempt, with ±25%
// jitter so synchronized clients spread out.
func (r *retryProvider) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := time.Duration(float64(r.baseDelay) * float64(uint(1)<<uint(attempt)))

	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - delay/4

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

// retryable reports whether the failure is worth another attempt.
// Context cancellation is never retried; the caller is gone.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var provErr *ports.ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsRetryable()
	}
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrServiceUnavailable) ||
		errors.Is(err, ports.ErrTimeout)
}

// Name returns the wrapped provider's instance name.
func (r *retryProvider) Name() string { return r.next.Name() }

// ValidateConfig delegates to the wrapped provider.
func (r *retryProvider) ValidateConfig() error { return r.next.ValidateConfig() }

var _ ports.Provider = (*retryProvider)(nil)

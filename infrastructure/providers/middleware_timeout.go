package providers

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// timeoutProvider bounds each Search call with its own deadline. A hung
// back-end degrades only its own call; other providers scheduled
// concurrently are unaffected.
type timeoutProvider struct {
	next    ports.Provider
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that enforces a per-call deadline
// on Search. A non-positive timeout disables the wrapper.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next ports.Provider) ports.Provider {
		if timeout <= 0 {
			return next
		}
		return &timeoutProvider{next: next, timeout: timeout}
	}
}

// Search executes the call under a timeout context and maps deadline
// expiry to the retrieval timeout sentinel.
func (t *timeoutProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	chunks, err := t.next.Search(ctx, query, topK)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return chunks, ports.NewProviderError(t.next.Name(), "search", ports.ErrTimeout)
	}
	return chunks, err
}

// Name returns the wrapped provider's instance name.
func (t *timeoutProvider) Name() string { return t.next.Name() }

// ValidateConfig delegates to the wrapped provider.
func (t *timeoutProvider) ValidateConfig() error { return t.next.ValidateConfig() }

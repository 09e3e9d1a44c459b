package providers

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// metricsProvider records latency, call counts, and retrieved chunk
// counts for every Search call.
type metricsProvider struct {
	next      ports.Provider
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that reports Search metrics to the
// given collector. A nil collector disables collection.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next ports.Provider) ports.Provider {
		return &metricsProvider{next: next, collector: collector}
	}
}

// Search forwards the call and records its outcome.
func (m *metricsProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	start := time.Now()
	chunks, err := m.next.Search(ctx, query, topK)

	if m.collector == nil {
		return chunks, err
	}

	labels := map[string]string{
		"provider": m.next.Name(),
		"status":   "success",
	}
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrTimeout) || ctx.Err() == context.DeadlineExceeded:
			labels["status"] = "timeout"
		case errors.Is(err, ports.ErrRateLimited):
			labels["status"] = "rate_limited"
		default:
			labels["status"] = "error"
		}
	}

	m.collector.RecordHistogram("search_latency_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("search_requests_total", 1, labels)
	if err == nil {
		m.collector.RecordHistogram("search_chunks_returned", float64(len(chunks)), labels)
	}

	return chunks, err
}

// Name returns the wrapped provider's instance name.
func (m *metricsProvider) Name() string { return m.next.Name() }

// ValidateConfig delegates to the wrapped provider.
func (m *metricsProvider) ValidateConfig() error { return m.next.ValidateConfig() }

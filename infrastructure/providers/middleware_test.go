package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// recordingCollector captures metric calls for assertions.
type recordingCollector struct {
	histograms map[string][]float64
	counters   map[string]float64
	labels     map[string]map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		histograms: make(map[string][]float64),
		counters:   make(map[string]float64),
		labels:     make(map[string]map[string]string),
	}
}

func (c *recordingCollector) RecordLatency(name string, d time.Duration, labels map[string]string) {
	c.histograms[name] = append(c.histograms[name], d.Seconds())
	c.labels[name] = labels
}

func (c *recordingCollector) RecordCounter(name string, value float64, labels map[string]string) {
	c.counters[name] += value
	c.labels[name] = labels
}

func (c *recordingCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	c.histograms[name] = append(c.histograms[name], value)
	c.labels[name] = labels
}

// slowProvider blocks until its delay elapses or the context expires.
type slowProvider struct {
	name  string
	delay time.Duration
}

func (s *slowProvider) Name() string { return s.name }

func (s *slowProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	select {
	case <-time.After(s.delay):
		return []domain.RagResult{{ID: "c1", Text: "slow but done", Score: 0.5}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *slowProvider) ValidateConfig() error { return nil }

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(label string) Middleware {
		return func(next ports.Provider) ports.Provider {
			return &taggedProvider{next: next, label: label, order: &order}
		}
	}

	p := Chain(&stubProvider{name: "base"}, tag("outer"), tag("inner"))
	_, err := p.Search(context.Background(), "q", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer", "inner"}, order)
}

type taggedProvider struct {
	next  ports.Provider
	label string
	order *[]string
}

func (p *taggedProvider) Name() string { return p.next.Name() }

func (p *taggedProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	*p.order = append(*p.order, p.label)
	return p.next.Search(ctx, query, topK)
}

func (p *taggedProvider) ValidateConfig() error { return p.next.ValidateConfig() }

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("expires a hung provider", func(t *testing.T) {
		p := Chain(&slowProvider{name: "slow", delay: time.Second}, TimeoutMiddleware(20*time.Millisecond))

		_, err := p.Search(context.Background(), "q", 1)

		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrTimeout)
		var provErr *ports.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "slow", provErr.Provider)
		assert.True(t, provErr.IsRetryable())
	})

	t.Run("passes a fast provider through", func(t *testing.T) {
		p := Chain(&slowProvider{name: "fast", delay: time.Millisecond}, TimeoutMiddleware(time.Second))

		chunks, err := p.Search(context.Background(), "q", 1)

		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	})

	t.Run("non-positive timeout disables the wrapper", func(t *testing.T) {
		base := &stubProvider{name: "base"}
		p := Chain(base, TimeoutMiddleware(0))
		assert.Same(t, ports.Provider(base), p)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	base := &stubProvider{name: "limited", chunks: []domain.RagResult{{ID: "c1"}}}
	p := Chain(base, RateLimitMiddleware(rate.Limit(100), 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.Search(context.Background(), "q", 1)
		require.NoError(t, err)
	}
	// Burst of 1 at 100/s means the second and third calls each wait
	// roughly 10ms.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestRateLimitMiddlewareRespectsContext(t *testing.T) {
	p := Chain(&stubProvider{name: "limited"}, RateLimitMiddleware(rate.Limit(0.001), 1))

	// First call consumes the burst token.
	_, err := p.Search(context.Background(), "q", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Search(ctx, "q", 1)
	assert.Error(t, err)
}

func TestMetricsMiddleware(t *testing.T) {
	t.Run("records success", func(t *testing.T) {
		collector := newRecordingCollector()
		base := &stubProvider{name: "ok", chunks: []domain.RagResult{{ID: "c1"}, {ID: "c2"}}}
		p := Chain(base, MetricsMiddleware(collector))

		_, err := p.Search(context.Background(), "q", 2)
		require.NoError(t, err)

		assert.Equal(t, float64(1), collector.counters["search_requests_total"])
		assert.Len(t, collector.histograms["search_latency_seconds"], 1)
		assert.Equal(t, []float64{2}, collector.histograms["search_chunks_returned"])
		assert.Equal(t, "success", collector.labels["search_requests_total"]["status"])
		assert.Equal(t, "ok", collector.labels["search_requests_total"]["provider"])
	})

	t.Run("records timeout status", func(t *testing.T) {
		collector := newRecordingCollector()
		base := &stubProvider{name: "hung", searchErr: ports.NewProviderError("hung", "search", ports.ErrTimeout)}
		p := Chain(base, MetricsMiddleware(collector))

		_, err := p.Search(context.Background(), "q", 1)
		require.Error(t, err)

		assert.Equal(t, "timeout", collector.labels["search_requests_total"]["status"])
		assert.Empty(t, collector.histograms["search_chunks_returned"])
	})

	t.Run("records rate limited status", func(t *testing.T) {
		collector := newRecordingCollector()
		base := &stubProvider{name: "busy", searchErr: ports.NewProviderError("busy", "search", ports.ErrRateLimited)}
		p := Chain(base, MetricsMiddleware(collector))

		_, err := p.Search(context.Background(), "q", 1)
		require.Error(t, err)

		assert.Equal(t, "rate_limited", collector.labels["search_requests_total"]["status"])
	})
}

func TestNormalizeByMax(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   []float64
	}{
		{
			name:   "rescales unbounded scores",
			scores: []float64{12.4, 6.2, 3.1},
			want:   []float64{1.0, 0.5, 0.25},
		},
		{
			name:   "all zero scores stay zero",
			scores: []float64{0, 0},
			want:   []float64{0, 0},
		},
		{
			name:   "negative scores collapse to zero",
			scores: []float64{-1.5, -0.1},
			want:   []float64{0, 0},
		},
		{
			name:   "empty list",
			scores: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := make([]domain.RagResult, len(tt.scores))
			for i, s := range tt.scores {
				chunks[i] = domain.RagResult{Score: s}
			}

			got := NormalizeByMax(chunks)

			require.Len(t, got, len(tt.want))
			for i, want := range tt.want {
				assert.InDelta(t, want, got[i].Score, 1e-9)
			}
		})
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-0.3))
	assert.Equal(t, 1.0, ClampScore(1.7))
	assert.Equal(t, 0.42, ClampScore(0.42))
}

package providers

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// tracerName identifies the instrumentation scope for provider spans.
const tracerName = "rag-arena/providers"

// tracedProvider wraps Search calls in OpenTelemetry spans for request
// debugging and latency analysis across the fan-out.
type tracedProvider struct {
	next   ports.Provider
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that records one span per Search
// call, carrying the provider name, query length, and chunk count.
func TracingMiddleware() Middleware {
	return func(next ports.Provider) ports.Provider {
		return &tracedProvider{
			next:   next,
			tracer: otel.Tracer(tracerName),
		}
	}
}

// Search executes the call inside a span and records failures on it.
func (t *tracedProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	ctx, span := t.tracer.Start(ctx, "provider.search",
		trace.WithAttributes(
			attribute.String("provider.name", t.next.Name()),
			attribute.Int("search.top_k", topK),
			attribute.Int("search.query_length", len(query)),
		),
	)
	defer span.End()

	chunks, err := t.next.Search(ctx, query, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chunks, err
	}

	span.SetAttributes(attribute.Int("search.chunks_returned", len(chunks)))
	return chunks, nil
}

// Name returns the wrapped provider's instance name.
func (t *tracedProvider) Name() string { return t.next.Name() }

// ValidateConfig delegates to the wrapped provider.
func (t *tracedProvider) ValidateConfig() error { return t.next.ValidateConfig() }

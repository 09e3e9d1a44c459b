package ports

import (
	"context"
	"time"
)

// LLMClient is the minimal chat-completion interface the evaluator needs.
// Implementations handle provider-specific authentication, request
// formatting, and response parsing.
type LLMClient interface {
	// Complete sends a prompt and returns the generated text. The
	// options map carries provider-specific settings such as
	// "temperature" (float64), "max_tokens" (int), or "model" (string).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of the given text for
	// cost estimation. The method may vary by provider.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier used by this client.
	GetModel() string
}

// MetricsCollector records operational metrics for provider calls and
// engine activity. Implementations integrate with Prometheus or similar
// systems; a nil collector disables collection.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram distribution.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

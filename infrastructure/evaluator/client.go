// Package evaluator provides the optional LLM judging stage. It contains
// chat-completion clients for the supported model vendors and the Judge
// that turns a finished comparison into a structured verdict.
package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/rag-arena/internal/ports"
)

// charsPerToken is the estimation ratio used when a vendor response
// carries no usage data. Roughly right for English prose across the
// supported vendors.
const charsPerToken = 4.0

// ClientConfig carries the vendor-independent settings for an LLM
// client.
type ClientConfig struct {
	// Vendor selects the backing API: "openai", "anthropic", or
	// "google".
	Vendor string

	// Model is the vendor model identifier. Empty selects the vendor
	// default.
	Model string

	// APIKey authenticates against the vendor API.
	APIKey string

	// BaseURL overrides the vendor endpoint, used for proxies and
	// compatible self-hosted APIs. Only OpenAI and Anthropic honor it.
	BaseURL string
}

// clientFactory builds a vendor client from its configuration.
type clientFactory func(ClientConfig) (ports.LLMClient, error)

// clientFactories maps vendor names to constructors. The map is written
// once during package initialization.
var clientFactories = map[string]clientFactory{
	"openai":    newOpenAIClient,
	"anthropic": newAnthropicClient,
	"google":    newGoogleClient,
}

// NewClient builds a chat-completion client for the configured vendor.
func NewClient(cfg ClientConfig) (ports.LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("evaluator API key cannot be empty")
	}
	factory, ok := clientFactories[cfg.Vendor]
	if !ok {
		return nil, fmt.Errorf("unsupported evaluator vendor %q", cfg.Vendor)
	}
	return factory(cfg)
}

// SupportedVendors returns the vendor names NewClient accepts.
func SupportedVendors() []string {
	return []string{"anthropic", "google", "openai"}
}

// estimateTokens approximates a token count from the character length.
// Used as a fallback when the vendor response omits usage data.
func estimateTokens(text string) int {
	return int(float64(len(text)) / charsPerToken)
}

// requestOptions is the per-call option set shared by all vendor
// clients.
type requestOptions struct {
	model       string
	maxTokens   int
	temperature *float64
	system      string
}

// parseRequestOptions extracts per-call options, falling back to the
// client's configured model and a generous completion budget.
func parseRequestOptions(opts map[string]any, defaultModel string) requestOptions {
	parsed := requestOptions{
		model:     defaultModel,
		maxTokens: 1024,
	}
	if m, ok := opts["model"].(string); ok && m != "" {
		parsed.model = m
	}
	switch v := opts["max_tokens"].(type) {
	case int:
		if v > 0 {
			parsed.maxTokens = v
		}
	case float64:
		if v > 0 {
			parsed.maxTokens = int(v)
		}
	}
	switch v := opts["temperature"].(type) {
	case float64:
		if v >= 0 && v <= 2 {
			parsed.temperature = &v
		}
	case int:
		f := float64(v)
		if f >= 0 && f <= 2 {
			parsed.temperature = &f
		}
	}
	if s, ok := opts["system"].(string); ok {
		parsed.system = s
	}
	return parsed
}

// classifyContextError maps context expiry onto the shared sentinels so
// callers can branch on cause without vendor knowledge.
func classifyContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ports.ErrTimeout, err)
	}
	return err
}

// classifyHTTPStatus maps a vendor HTTP status onto the shared
// sentinels.
func classifyHTTPStatus(vendor string, status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%s: %w: %v", vendor, ports.ErrAuthenticationFailed, err)
	case status == 429:
		return fmt.Errorf("%s: %w: %v", vendor, ports.ErrRateLimited, err)
	case status >= 500:
		return fmt.Errorf("%s: %w: %v", vendor, ports.ErrServiceUnavailable, err)
	default:
		return fmt.Errorf("%s: api error (status %d): %w", vendor, status, err)
	}
}

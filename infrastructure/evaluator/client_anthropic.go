package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/rag-arena/internal/ports"
)

// AnthropicDefaultModel is used when the configuration names no model.
const AnthropicDefaultModel = "claude-3-5-sonnet-20241022"

var _ ports.LLMClient = (*anthropicClient)(nil)

// anthropicClient implements the chat-completion port against the
// Anthropic Messages API.
type anthropicClient struct {
	client anthropic.Client
	model  string
}

func newAnthropicClient(cfg ClientConfig) (ports.LLMClient, error) {
	model := cfg.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// Complete sends the prompt as a single user message and concatenates
// the text blocks of the reply.
func (c *anthropicClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	opts := parseRequestOptions(options, c.model)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.model),
		MaxTokens: int64(opts.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.temperature != nil {
		params.Temperature = anthropic.Float(*opts.temperature)
	}
	if opts.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", c.wrapError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if content, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w: empty reply", ports.ErrInvalidResponse)
	}
	return text.String(), nil
}

// EstimateTokens approximates the token count of text.
func (c *anthropicClient) EstimateTokens(text string) (int, error) {
	return estimateTokens(text), nil
}

// GetModel returns the configured model identifier.
func (c *anthropicClient) GetModel() string { return c.model }

func (c *anthropicClient) wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classifyContextError(err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus("anthropic", apiErr.StatusCode, err)
	}
	return fmt.Errorf("anthropic: request failed: %w", err)
}

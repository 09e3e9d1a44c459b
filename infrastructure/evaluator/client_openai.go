package evaluator

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/rag-arena/internal/ports"
)

// OpenAIDefaultModel is used when the configuration names no model.
const OpenAIDefaultModel = "gpt-4o-mini"

var _ ports.LLMClient = (*openAIClient)(nil)

// openAIClient implements the chat-completion port against the OpenAI
// API, or any API speaking the same wire protocol through BaseURL.
type openAIClient struct {
	client *openai.Client
	model  string
}

func newOpenAIClient(cfg ClientConfig) (ports.LLMClient, error) {
	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Complete sends the prompt as a single user message and returns the
// first choice's content.
func (c *openAIClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	opts := parseRequestOptions(options, c.model)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     opts.model,
		Messages:  messages,
		MaxTokens: opts.maxTokens,
	}
	if opts.temperature != nil {
		req.Temperature = float32(*opts.temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w: no choices", ports.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// EstimateTokens approximates the token count of text.
func (c *openAIClient) EstimateTokens(text string) (int, error) {
	return estimateTokens(text), nil
}

// GetModel returns the configured model identifier.
func (c *openAIClient) GetModel() string { return c.model }

func (c *openAIClient) wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classifyContextError(err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus("openai", apiErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("openai: request failed: %w", err)
}

package evaluator

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/rag-arena/internal/ports"
)

// GoogleDefaultModel is used when the configuration names no model.
const GoogleDefaultModel = "gemini-2.0-flash"

var _ ports.LLMClient = (*googleClient)(nil)

// googleClient implements the chat-completion port against the Gemini
// API. Gemini has no separate system role, so a system prompt is folded
// into the user prompt.
type googleClient struct {
	client *genai.Client
	model  string
}

func newGoogleClient(cfg ClientConfig) (ports.LLMClient, error) {
	model := cfg.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}

	return &googleClient{client: client, model: model}, nil
}

// Complete sends the prompt and returns the generated text.
func (c *googleClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	opts := parseRequestOptions(options, c.model)

	finalPrompt := prompt
	if opts.system != "" {
		finalPrompt = fmt.Sprintf("System: %s\n\nUser: %s", opts.system, prompt)
	}
	contents := []*genai.Content{genai.NewContentFromText(finalPrompt, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(opts.maxTokens),
	}
	if opts.temperature != nil {
		config.Temperature = genai.Ptr(float32(*opts.temperature))
	}

	resp, err := c.client.Models.GenerateContent(ctx, opts.model, contents, config)
	if err != nil {
		return "", c.wrapError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("google: %w: empty reply", ports.ErrInvalidResponse)
	}
	return text, nil
}

// EstimateTokens approximates the token count of text.
func (c *googleClient) EstimateTokens(text string) (int, error) {
	return estimateTokens(text), nil
}

// GetModel returns the configured model identifier.
func (c *googleClient) GetModel() string { return c.model }

func (c *googleClient) wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classifyContextError(err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus("google", apiErr.Code, err)
	}
	return fmt.Errorf("google: request failed: %w", err)
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// HTTPAPIAdapterName is the registry key for the generic REST adapter.
const HTTPAPIAdapterName = "httpapi"

// Verify interface compliance at compile time.
var _ ports.Provider = (*httpAPIProvider)(nil)

// httpAPIProvider calls any REST search endpoint that accepts
// {"query": ..., "top_k": ...} and returns a JSON list of chunks. It owns
// its own HTTP client and request timeout.
type httpAPIProvider struct {
	name      string
	endpoint  string
	authName  string
	authValue string
	client    *http.Client
}

// httpSearchRequest is the wire shape of the outgoing search call.
type httpSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// httpSearchResponse is the wire shape of the endpoint's reply.
type httpSearchResponse struct {
	Results []struct {
		ID       string         `json:"id"`
		Text     string         `json:"text"`
		Score    float64        `json:"score"`
		Source   string         `json:"source"`
		Metadata map[string]any `json:"metadata"`
	} `json:"results"`
}

// newHTTPAPIProvider constructs the generic REST adapter.
//
// Options: endpoint (required URL), timeout_seconds, auth_header
// (default "Authorization"). The secret named by api_key_env in the
// configuration arrives pre-resolved in creds under that same name.
func newHTTPAPIProvider(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
	endpoint := optString(cfg.Options, "endpoint", "")

	var authValue string
	if keyName := optString(cfg.Options, "api_key_env", ""); keyName != "" {
		authValue = creds[keyName]
	}

	return &httpAPIProvider{
		name:      cfg.Name,
		endpoint:  endpoint,
		authName:  optString(cfg.Options, "auth_header", "Authorization"),
		authValue: authValue,
		client: &http.Client{
			Timeout: optDuration(cfg.Options, "timeout_seconds", DefaultSearchTimeout),
		},
	}, nil
}

// Name returns the configured instance name.
func (p *httpAPIProvider) Name() string { return p.name }

// ValidateConfig checks the endpoint is a well-formed absolute URL.
func (p *httpAPIProvider) ValidateConfig() error {
	if p.endpoint == "" {
		return errors.New("endpoint is required")
	}
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Search posts the query to the endpoint and maps the reply into ranked
// chunks with clamped scores and normalized metadata.
func (p *httpAPIProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	body, err := json.Marshal(httpSearchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authValue != "" {
		req.Header.Set(p.authName, "Bearer "+p.authValue)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ports.NewProviderError(p.name, "search", ports.ErrTimeout)
		}
		return nil, ports.NewProviderError(p.name, "search", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, ports.NewProviderError(p.name, "search", err)
	}

	var parsed httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ports.NewProviderError(p.name, "search",
			fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err))
	}

	chunks := make([]domain.RagResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		chunks = append(chunks, domain.RagResult{
			ID:       r.ID,
			Text:     r.Text,
			Score:    ClampScore(r.Score),
			Source:   r.Source,
			Metadata: domain.NormalizeMetadata(r.Metadata),
		})
	}
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

// classifyStatus maps HTTP status codes onto the retrieval error
// sentinels.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ports.ErrAuthenticationFailed, code)
	case code == http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case code == http.StatusGatewayTimeout:
		return ports.ErrTimeout
	case code >= 500:
		return fmt.Errorf("%w: status %d", ports.ErrServiceUnavailable, code)
	default:
		return fmt.Errorf("%w: unexpected status %d", ports.ErrInvalidResponse, code)
	}
}

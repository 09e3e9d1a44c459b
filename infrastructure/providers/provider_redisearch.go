package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// RediSearchAdapterName is the registry key for the RediSearch adapter.
const RediSearchAdapterName = "redisearch"

// Verify interface compliance at compile time.
var _ ports.Provider = (*rediSearchProvider)(nil)

// rediSearchProvider runs full-text BM25 queries against a RediSearch
// index. Raw BM25 scores are unbounded, so the result set is rescaled by
// its maximum score before being returned.
type rediSearchProvider struct {
	name      string
	index     string
	textField string
	idField   string
	client    rueidis.Client
}

// newRediSearchProvider constructs the RediSearch adapter.
//
// Options: addr (required), index (required), text_field (default
// "text"), id_field, username, db. The password is a secret named by
// password_env and resolved from creds.
func newRediSearchProvider(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
	addr := optString(cfg.Options, "addr", "")
	if addr == "" {
		return nil, errors.New("addr option is required")
	}
	index := optString(cfg.Options, "index", "")
	if index == "" {
		return nil, errors.New("index option is required")
	}

	password := ""
	if passName := optString(cfg.Options, "password_env", ""); passName != "" {
		password = creds[passName]
		if password == "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingCredential, passName)
		}
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
		Username:    optString(cfg.Options, "username", ""),
		Password:    password,
		SelectDB:    optInt(cfg.Options, "db", 0),
		// RediSearch replies are not cacheable and FT.* commands need
		// the RESP2 reply shape this parser expects.
		DisableCache: true,
		AlwaysRESP2:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &rediSearchProvider{
		name:      cfg.Name,
		index:     index,
		textField: optString(cfg.Options, "text_field", "text"),
		idField:   optString(cfg.Options, "id_field", ""),
		client:    client,
	}, nil
}

// Name returns the configured instance name.
func (p *rediSearchProvider) Name() string { return p.name }

// ValidateConfig pings the server to confirm the connection works.
func (p *rediSearchProvider) ValidateConfig() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Do(ctx, p.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// searchArgs builds the FT.SEARCH argument list: index, query, the
// RETURN field set, WITHSCORES, paging, and dialect 2.
func (p *rediSearchProvider) searchArgs(query string, topK int) []string {
	returnFields := []string{p.textField}
	if p.idField != "" && p.idField != p.textField {
		returnFields = append(returnFields, p.idField)
	}
	args := []string{p.index, query, "RETURN", strconv.Itoa(len(returnFields))}
	args = append(args, returnFields...)
	return append(args, "WITHSCORES", "LIMIT", "0", strconv.Itoa(topK), "DIALECT", "2")
}

// Search issues FT.SEARCH with WITHSCORES and parses the three-stride
// reply of [total, key, score, fields, ...].
func (p *rediSearchProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	cmd := p.client.B().Arbitrary("FT.SEARCH").Args(p.searchArgs(query, topK)...).ReadOnly()

	reply, err := p.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ports.NewProviderError(p.name, "search", ports.ErrTimeout)
		}
		return nil, ports.NewProviderError(p.name, "search",
			fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err))
	}
	if len(reply) == 0 {
		return nil, ports.NewProviderError(p.name, "search",
			fmt.Errorf("%w: empty reply", ports.ErrInvalidResponse))
	}

	chunks := make([]domain.RagResult, 0, topK)
	for i := 1; i+2 < len(reply); i += 3 {
		key, err := reply[i].ToString()
		if err != nil {
			return nil, ports.NewProviderError(p.name, "search",
				fmt.Errorf("%w: document key: %v", ports.ErrInvalidResponse, err))
		}
		scoreStr, err := reply[i+1].ToString()
		if err != nil {
			return nil, ports.NewProviderError(p.name, "search",
				fmt.Errorf("%w: document score: %v", ports.ErrInvalidResponse, err))
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			return nil, ports.NewProviderError(p.name, "search",
				fmt.Errorf("%w: parse score %q: %v", ports.ErrInvalidResponse, scoreStr, err))
		}

		fields, err := reply[i+2].AsStrMap()
		if err != nil {
			return nil, ports.NewProviderError(p.name, "search",
				fmt.Errorf("%w: document fields: %v", ports.ErrInvalidResponse, err))
		}

		id := key
		if p.idField != "" {
			if v, ok := fields[p.idField]; ok && v != "" {
				id = v
			}
		}
		chunks = append(chunks, domain.RagResult{
			ID:     id,
			Text:   fields[p.textField],
			Score:  score,
			Source: key,
			Metadata: map[string]any{
				"index":      p.index,
				"bm25_score": score,
			},
		})
	}

	NormalizeByMax(chunks)
	return chunks, nil
}

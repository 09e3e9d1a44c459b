package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// OpenAIVectorAdapterName is the registry key for the embedding adapter.
const OpenAIVectorAdapterName = "openai-vector"

// openAIVectorDefaultModel is used when the configuration does not pick
// an embedding model.
const openAIVectorDefaultModel = "text-embedding-3-small"

// Verify interface compliance at compile time.
var _ ports.Provider = (*openAIVectorProvider)(nil)

// vectorDocument is one entry of the adapter's inline corpus.
type vectorDocument struct {
	id     string
	text   string
	source string
}

// openAIVectorProvider ranks an inline document corpus against the query
// by cosine similarity of OpenAI embeddings. The corpus is embedded
// lazily on first search and cached for the provider's lifetime.
type openAIVectorProvider struct {
	name   string
	model  openai.EmbeddingModel
	client *openai.Client
	docs   []vectorDocument

	// embedOnce guards the one-time corpus embedding.
	embedOnce sync.Once
	// vectors holds one embedding per document, index-aligned with docs.
	vectors [][]float32
	// embedErr remembers a failed corpus embedding so later searches
	// fail fast with the same cause.
	embedErr error
}

// newOpenAIVectorProvider constructs the embedding adapter.
//
// Options: model, base_url, api_key_env (secret name, resolved into
// creds), documents (list of {id, text, source} mappings).
func newOpenAIVectorProvider(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
	keyName := optString(cfg.Options, "api_key_env", "OPENAI_API_KEY")
	apiKey := creds[keyName]
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingCredential, keyName)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := optString(cfg.Options, "base_url", ""); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	rawDocs, err := optMapSlice(cfg.Options, "documents")
	if err != nil {
		return nil, err
	}
	docs := make([]vectorDocument, 0, len(rawDocs))
	for i, d := range rawDocs {
		doc := vectorDocument{
			id:     optString(d, "id", fmt.Sprintf("doc-%d", i)),
			text:   optString(d, "text", ""),
			source: optString(d, "source", ""),
		}
		docs = append(docs, doc)
	}

	return &openAIVectorProvider{
		name:   cfg.Name,
		model:  openai.EmbeddingModel(optString(cfg.Options, "model", openAIVectorDefaultModel)),
		client: openai.NewClientWithConfig(clientCfg),
		docs:   docs,
	}, nil
}

// Name returns the configured instance name.
func (p *openAIVectorProvider) Name() string { return p.name }

// ValidateConfig checks the corpus is present and its entries have text.
func (p *openAIVectorProvider) ValidateConfig() error {
	if len(p.docs) == 0 {
		return errors.New("documents corpus is required")
	}
	for _, doc := range p.docs {
		if doc.text == "" {
			return fmt.Errorf("document %q has empty text", doc.id)
		}
	}
	return nil
}

// Search embeds the query and returns the topK most similar documents.
// Cosine similarity is mapped linearly from [-1, 1] into [0, 1].
func (p *openAIVectorProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	if err := p.ensureCorpusEmbedded(ctx); err != nil {
		return nil, ports.NewProviderError(p.name, "search", err)
	}

	queryVec, err := p.embed(ctx, []string{query})
	if err != nil {
		return nil, ports.NewProviderError(p.name, "search", err)
	}

	type scored struct {
		idx int
		sim float64
	}
	ranked := make([]scored, len(p.docs))
	for i := range p.docs {
		ranked[i] = scored{idx: i, sim: cosineSimilarity(queryVec[0], p.vectors[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

	if topK < len(ranked) {
		ranked = ranked[:topK]
	}

	chunks := make([]domain.RagResult, 0, len(ranked))
	for _, r := range ranked {
		doc := p.docs[r.idx]
		chunks = append(chunks, domain.RagResult{
			ID:     doc.id,
			Text:   doc.text,
			Score:  ClampScore((r.sim + 1) / 2),
			Source: doc.source,
			Metadata: map[string]any{
				"similarity": r.sim,
				"model":      string(p.model),
			},
		})
	}
	return chunks, nil
}

// ensureCorpusEmbedded embeds the document corpus exactly once.
func (p *openAIVectorProvider) ensureCorpusEmbedded(ctx context.Context) error {
	p.embedOnce.Do(func() {
		texts := make([]string, len(p.docs))
		for i, doc := range p.docs {
			texts[i] = doc.text
		}
		p.vectors, p.embedErr = p.embed(ctx, texts)
	})
	return p.embedErr
}

// embed requests embeddings for the given texts.
func (p *openAIVectorProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          p.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			ports.ErrInvalidResponse, len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ports.ErrInvalidResponse, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors,
// or 0 when either has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

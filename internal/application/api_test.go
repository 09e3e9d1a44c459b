package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
	"github.com/ahrav/rag-arena/internal/testutils"
)

const apiDocument = `
tools:
  alpha:
    tool: fake
    api_key_env: ALPHA_KEY
  beta:
    tool: fake
  gamma:
    tool: fake
llm:
  vendor: openai
  model: gpt-4o-mini
  api_key_env: JUDGE_KEY
`

func apiRegistry() ports.Registry {
	return &stubRegistry{infos: map[string]ports.AdapterInfo{
		testutils.FakeAdapterName: {Name: testutils.FakeAdapterName, APIVersion: "v1.0"},
	}}
}

func apiConfig(t *testing.T, creds domain.Credentials) *Config {
	t.Helper()
	doc, err := ParseDocument([]byte(apiDocument))
	require.NoError(t, err)
	return NewConfig(doc, creds, apiRegistry(), fakeEnv(nil))
}

func apiFactory() (*testutils.FakeFactory, map[string]*testutils.FakeProvider) {
	providers := map[string]*testutils.FakeProvider{
		"alpha": {ProviderName: "alpha", Chunks: chunksFor("from alpha")},
		"beta":  {ProviderName: "beta", Chunks: chunksFor("from beta")},
		"gamma": {ProviderName: "gamma", Chunks: chunksFor("from gamma")},
	}
	factory := &testutils.FakeFactory{Providers: make(map[string]ports.Provider, len(providers))}
	for name, p := range providers {
		factory.Providers[name] = p
	}
	return factory, providers
}

func TestAPIQuery(t *testing.T) {
	factory, _ := apiFactory()
	api := NewAPI(apiRegistry(), factory)
	cfg := apiConfig(t, domain.Credentials{"ALPHA_KEY": "sk-alpha"})

	t.Run("named provider", func(t *testing.T) {
		chunks, err := api.Query(context.Background(), cfg, "question", "beta", 5)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "from beta", chunks[0].Text)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := api.Query(context.Background(), cfg, "question", "nope", 5)
		assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	})
}

func TestAPICompare(t *testing.T) {
	factory, providers := apiFactory()
	api := NewAPI(apiRegistry(), factory)
	cfg := apiConfig(t, nil)

	t.Run("empty list selects all providers in document order", func(t *testing.T) {
		result, err := api.Compare(context.Background(), cfg, "q", nil, 5, true, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta", "gamma"}, result.Providers)
		require.NoError(t, result.Validate())
	})

	t.Run("explicit subset", func(t *testing.T) {
		result, err := api.Compare(context.Background(), cfg, "q", []string{"gamma", "alpha"}, 5, false, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"gamma", "alpha"}, result.Providers)
		assert.NotContains(t, result.ToolResults, "beta")
	})

	t.Run("unknown name fails before any search", func(t *testing.T) {
		before := providers["alpha"].Calls()
		_, err := api.Compare(context.Background(), cfg, "q", []string{"alpha", "nope"}, 5, false, false)
		assert.ErrorIs(t, err, domain.ErrUnknownProvider)
		assert.Equal(t, before, providers["alpha"].Calls())
	})

	t.Run("evaluation without a factory", func(t *testing.T) {
		_, err := api.Compare(context.Background(), cfg, "q", nil, 5, false, true)
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})
}

func TestAPICompareWithEvaluator(t *testing.T) {
	factory, _ := apiFactory()

	var gotCfg LLMConfig
	var gotKey string
	evaluator := &scriptedEvaluator{verdict: &domain.Evaluation{
		Model:      "gpt-4o-mini",
		Winner:     "alpha",
		Scores:     map[string]float64{"alpha": 0.9, "beta": 0.3, "gamma": 0.1},
		Confidence: 0.7,
	}}
	api := NewAPI(apiRegistry(), factory,
		WithAPIEvaluatorFactory(func(cfg LLMConfig, apiKey string) (ports.Evaluator, error) {
			gotCfg, gotKey = cfg, apiKey
			return evaluator, nil
		}))

	t.Run("verdict attached", func(t *testing.T) {
		cfg := apiConfig(t, domain.Credentials{"JUDGE_KEY": "sk-judge"})
		result, err := api.Compare(context.Background(), cfg, "q", nil, 5, false, true)
		require.NoError(t, err)

		require.NotNil(t, result.Evaluation)
		assert.Equal(t, "alpha", result.Evaluation.Winner)
		assert.Equal(t, "openai", gotCfg.Vendor)
		assert.Equal(t, "sk-judge", gotKey)
	})

	t.Run("missing judge key", func(t *testing.T) {
		cfg := apiConfig(t, nil)
		_, err := api.Compare(context.Background(), cfg, "q", nil, 5, false, true)
		assert.ErrorIs(t, err, domain.ErrMissingCredential)
	})
}

func TestAPIRunBatch(t *testing.T) {
	factory, providers := apiFactory()
	api := NewAPI(apiRegistry(), factory)
	cfg := apiConfig(t, nil)

	queries := []string{"first", "second"}
	results, err := api.RunBatch(context.Background(), cfg, queries, []string{"alpha"}, 5, false, false)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Query)
	assert.Equal(t, "second", results[1].Query)
	assert.Equal(t, queries, providers["alpha"].Queries())
}

func TestAPIExecute(t *testing.T) {
	factory, _ := apiFactory()
	store := &recordingStore{}
	api := NewAPI(apiRegistry(), factory, WithAPIRunStore(store))
	cfg := apiConfig(t, nil)

	run, err := api.Execute(context.Background(), cfg, ExecuteParams{
		Domain:   "legal",
		Label:    "nightly",
		QuerySet: legalQuerySet(),
		TopK:     3,
	}, "beta")
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, "beta", run.Provider)
	require.Len(t, store.saved, 1)
	assert.Equal(t, run.ID, store.saved[0].ID)
}

func TestAPIValidateConfig(t *testing.T) {
	factory, _ := apiFactory()
	api := NewAPI(apiRegistry(), factory)

	t.Run("valid configuration", func(t *testing.T) {
		cfg := apiConfig(t, domain.Credentials{"ALPHA_KEY": "a", "JUDGE_KEY": "j"})
		report := api.ValidateConfig(cfg)

		assert.True(t, report.Valid)
		assert.Empty(t, report.Errors)
		assert.Equal(t, []string{"alpha", "beta", "gamma"}, report.Tools)
		assert.True(t, report.LLMConfigured)
	})

	t.Run("missing secrets", func(t *testing.T) {
		cfg := apiConfig(t, nil)
		report := api.ValidateConfig(cfg)

		assert.False(t, report.Valid)
		require.Len(t, report.Errors, 1)
		assert.Contains(t, report.Errors[0], "ALPHA_KEY")
		assert.Contains(t, report.Errors[0], "JUDGE_KEY")
	})

	t.Run("unknown tool", func(t *testing.T) {
		doc, err := ParseDocument([]byte("tools:\n  odd:\n    tool: no-such-adapter\n"))
		require.NoError(t, err)
		cfg := NewConfig(doc, nil, apiRegistry(), fakeEnv(nil))

		report := api.ValidateConfig(cfg)
		assert.False(t, report.Valid)

		found := false
		for _, msg := range report.Errors {
			if strings.Contains(msg, "no-such-adapter") {
				found = true
			}
		}
		assert.True(t, found, "report names the unknown adapter")
	})
}

func TestAPIAvailableAdapters(t *testing.T) {
	registry := &stubRegistry{infos: map[string]ports.AdapterInfo{}}
	api := NewAPI(registry, &testutils.FakeFactory{})
	assert.Empty(t, api.AvailableAdapters())

	// Construction failures surface as errors, not panics.
	cfg := apiConfig(t, nil)
	broken := NewAPI(apiRegistry(), &testutils.FakeFactory{CreateErr: errors.New("boom")})
	_, err := broken.Query(context.Background(), cfg, "q", "alpha", 1)
	assert.Error(t, err)
}

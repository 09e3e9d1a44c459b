package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// EvaluatorFactory builds a judging stage from the document's evaluator
// block and its resolved API key. The CLI wires the LLM-backed
// implementation; tests wire fakes.
type EvaluatorFactory func(cfg LLMConfig, apiKey string) (ports.Evaluator, error)

// API is the façade over the engines, exposing the public entry points
// against a bound configuration.
type API struct {
	registry  ports.Registry
	factory   ProviderFactory
	evaluator EvaluatorFactory
	store     ports.RunStore
	metrics   ports.MetricsCollector
	logger    *zap.Logger
}

// APIOption customizes an API.
type APIOption func(*API)

// WithAPIEvaluatorFactory enables the judging stage.
func WithAPIEvaluatorFactory(factory EvaluatorFactory) APIOption {
	return func(a *API) { a.evaluator = factory }
}

// WithAPIRunStore persists execution runs.
func WithAPIRunStore(store ports.RunStore) APIOption {
	return func(a *API) { a.store = store }
}

// WithAPIMetrics records engine metrics.
func WithAPIMetrics(collector ports.MetricsCollector) APIOption {
	return func(a *API) { a.metrics = collector }
}

// WithAPILogger attaches a logger.
func WithAPILogger(logger *zap.Logger) APIOption {
	return func(a *API) { a.logger = logger }
}

// NewAPI creates the façade over a registry and provider factory.
func NewAPI(registry ports.Registry, factory ProviderFactory, opts ...APIOption) *API {
	a := &API{
		registry: registry,
		factory:  factory,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Query runs a single query against one named provider and returns its
// ranked chunks. It fails with a *domain.ConfigurationError when the
// provider name is not configured.
func (a *API) Query(ctx context.Context, cfg *Config, text, providerName string, topK int) ([]domain.RagResult, error) {
	provider, err := a.buildProvider(cfg, providerName)
	if err != nil {
		return nil, err
	}
	return provider.Search(ctx, text, topK)
}

// Compare fans the query out to the named providers and merges the
// outcomes. A nil or empty provider list selects every configured
// provider, in document order. Provider failures are recorded in the
// result; only configuration and evaluation problems surface as errors.
func (a *API) Compare(ctx context.Context, cfg *Config, text string, providerNames []string, topK int, parallel, evaluate bool) (*domain.ComparisonResult, error) {
	engine, providers, err := a.comparisonFor(cfg, providerNames, evaluate)
	if err != nil {
		return nil, err
	}
	return engine.Compare(ctx, CompareParams{
		Query:     text,
		Providers: providers,
		TopK:      topK,
		Parallel:  parallel,
		Evaluate:  evaluate,
	})
}

// RunBatch repeats Compare across the query list, preserving 1:1 order.
func (a *API) RunBatch(ctx context.Context, cfg *Config, texts []string, providerNames []string, topK int, parallel, evaluate bool) ([]*domain.ComparisonResult, error) {
	engine, providers, err := a.comparisonFor(cfg, providerNames, evaluate)
	if err != nil {
		return nil, err
	}
	return engine.RunBatch(ctx, texts, CompareParams{
		Providers: providers,
		TopK:      topK,
		Parallel:  parallel,
		Evaluate:  evaluate,
	})
}

// Execute runs a persisted benchmark of one query set against one named
// provider.
func (a *API) Execute(ctx context.Context, cfg *Config, params ExecuteParams, providerName string) (*domain.Run, error) {
	providerCfg, creds, err := cfg.Provider(providerName)
	if err != nil {
		return nil, err
	}
	params.Provider = providerCfg
	params.Credentials = creds

	engine := NewExecutionEngine(a.factory,
		WithRunStore(a.store),
		WithExecutionMetrics(a.metrics),
		WithExecutionLogger(a.logger))
	return engine.Execute(ctx, params)
}

// ValidationReport is the outcome of ValidateConfig. It reports, never
// fails.
type ValidationReport struct {
	// Valid is true when every secret resolves and every placeholder
	// substitutes.
	Valid bool `json:"valid"`

	// Errors lists human-readable problems.
	Errors []string `json:"errors,omitempty"`

	// Tools lists the configured provider names in document order.
	Tools []string `json:"tools"`

	// LLMConfigured reports whether an evaluator block is present.
	LLMConfigured bool `json:"llm_configured"`
}

// ValidateConfig checks a bound configuration and reports the outcome.
// Unlike Config.Validate it never returns an error.
func (a *API) ValidateConfig(cfg *Config) ValidationReport {
	report := ValidationReport{
		Valid:         true,
		Tools:         cfg.ProviderNames(),
		LLMConfigured: cfg.LLMConfigured(),
	}

	if err := cfg.Validate(); err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, err.Error())
	}

	// Tool names must resolve to registered adapters.
	for _, name := range cfg.ProviderNames() {
		tc, _ := cfg.doc.Tools.Get(name)
		if _, ok := a.registry.Get(tc.Tool); !ok {
			report.Valid = false
			report.Errors = append(report.Errors,
				fmt.Sprintf("provider %q references unknown tool %q", name, tc.Tool))
		}
	}
	return report
}

// AvailableAdapters describes every registered adapter type.
func (a *API) AvailableAdapters() []ports.AdapterInfo {
	return a.registry.Describe()
}

// buildProvider resolves and constructs one named provider.
func (a *API) buildProvider(cfg *Config, name string) (ports.Provider, error) {
	providerCfg, creds, err := cfg.Provider(name)
	if err != nil {
		return nil, err
	}
	return a.factory.Create(providerCfg, creds)
}

// comparisonFor assembles a comparison engine and the provider instances
// for the request. Unknown names and construction failures surface as
// configuration errors before any search runs.
func (a *API) comparisonFor(cfg *Config, providerNames []string, evaluate bool) (*ComparisonEngine, []ports.Provider, error) {
	if len(providerNames) == 0 {
		providerNames = cfg.ProviderNames()
	}

	providers := make([]ports.Provider, 0, len(providerNames))
	for _, name := range providerNames {
		provider, err := a.buildProvider(cfg, name)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, provider)
	}

	opts := []ComparisonOption{
		WithComparisonMetrics(a.metrics),
		WithComparisonLogger(a.logger),
	}
	if evaluate {
		if a.evaluator == nil {
			return nil, nil, &domain.ConfigurationError{
				Reason: "evaluation requested but no evaluator factory is wired",
				Err:    domain.ErrInvalidConfiguration,
			}
		}
		llmCfg, apiKey, err := cfg.Evaluator()
		if err != nil {
			return nil, nil, err
		}
		judge, err := a.evaluator(llmCfg, apiKey)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, WithEvaluator(judge))
	}

	return NewComparisonEngine(opts...), providers, nil
}

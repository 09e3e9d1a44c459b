package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// ComparisonEngine fans one query out to N providers and merges the
// outcomes into a ComparisonResult. Provider failures land in the
// result's error map; they never escape Compare.
type ComparisonEngine struct {
	evaluator ports.Evaluator
	metrics   ports.MetricsCollector
	logger    *zap.Logger
}

// ComparisonOption customizes a ComparisonEngine.
type ComparisonOption func(*ComparisonEngine)

// WithEvaluator enables the optional judging stage.
func WithEvaluator(evaluator ports.Evaluator) ComparisonOption {
	return func(e *ComparisonEngine) { e.evaluator = evaluator }
}

// WithComparisonMetrics records comparison metrics into the collector.
func WithComparisonMetrics(collector ports.MetricsCollector) ComparisonOption {
	return func(e *ComparisonEngine) { e.metrics = collector }
}

// WithComparisonLogger attaches a logger to the engine.
func WithComparisonLogger(logger *zap.Logger) ComparisonOption {
	return func(e *ComparisonEngine) { e.logger = logger }
}

// NewComparisonEngine creates a comparison engine.
func NewComparisonEngine(opts ...ComparisonOption) *ComparisonEngine {
	e := &ComparisonEngine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompareParams describes one comparison request.
type CompareParams struct {
	// Query is the text to fan out.
	Query string

	// Providers are the ready-to-use instances to compare, in the order
	// the result should present them.
	Providers []ports.Provider

	// TopK bounds each provider's result list.
	TopK int

	// Parallel launches one worker per provider. Sequential mode exists
	// for deterministic debugging and tests.
	Parallel bool

	// Evaluate runs the judging stage after aggregation when the engine
	// has an evaluator.
	Evaluate bool
}

// Compare runs the query against every provider and merges the outcomes.
// The returned result always satisfies the completeness invariant: the
// union of result and error keys equals the requested provider names.
// An evaluation failure is returned as the error alongside the still
// valid comparison; retrieval outcomes are never invalidated by it.
func (e *ComparisonEngine) Compare(ctx context.Context, params CompareParams) (*domain.ComparisonResult, error) {
	names := make([]string, len(params.Providers))
	for i, p := range params.Providers {
		names[i] = p.Name()
	}
	result := domain.NewComparisonResult(params.Query, names)

	type outcome struct {
		chunks []domain.RagResult
		err    error
	}
	outcomes := make([]outcome, len(params.Providers))

	start := time.Now()
	if params.Parallel {
		var wg sync.WaitGroup
		for i, p := range params.Providers {
			wg.Add(1)
			go func(slot int, provider ports.Provider) {
				defer wg.Done()
				chunks, err := e.searchOne(ctx, provider, params.Query, params.TopK)
				outcomes[slot] = outcome{chunks: chunks, err: err}
			}(i, p)
		}
		wg.Wait()
	} else {
		for i, p := range params.Providers {
			chunks, err := e.searchOne(ctx, p, params.Query, params.TopK)
			outcomes[i] = outcome{chunks: chunks, err: err}
		}
	}

	// Merge after the barrier, single-threaded, in requested order.
	for i, name := range names {
		if outcomes[i].err != nil {
			result.SetError(name, outcomes[i].err.Error())
			continue
		}
		result.SetResults(name, outcomes[i].chunks)
	}

	if e.metrics != nil {
		e.metrics.RecordLatency("compare", time.Since(start), map[string]string{"status": "success"})
		e.metrics.RecordCounter("comparisons_total", 1, map[string]string{"status": "success"})
	}
	e.logger.Debug("comparison merged",
		zap.String("query", params.Query),
		zap.Int("providers", len(names)),
		zap.Int("failures", len(result.Errors)))

	if params.Evaluate && e.evaluator != nil {
		evaluation, err := e.evaluator.Evaluate(ctx, result)
		if err != nil {
			e.logger.Warn("evaluation failed", zap.String("query", params.Query), zap.Error(err))
			return result, err
		}
		result.Evaluation = evaluation
	}
	return result, nil
}

// searchOne runs a single provider call in isolation, converting panics
// into errors.
func (e *ComparisonEngine) searchOne(ctx context.Context, provider ports.Provider, query string, topK int) (chunks []domain.RagResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return provider.Search(ctx, query, topK)
}

// RunBatch repeats the comparison across a list of queries, preserving
// the 1:1 order between inputs and outputs. One query's evaluation
// failure is logged and leaves that element without a verdict; it never
// aborts the remaining queries.
func (e *ComparisonEngine) RunBatch(ctx context.Context, queries []string, params CompareParams) ([]*domain.ComparisonResult, error) {
	results := make([]*domain.ComparisonResult, len(queries))
	for i, query := range queries {
		p := params
		p.Query = query
		result, err := e.Compare(ctx, p)
		if err != nil {
			e.logger.Warn("batch element evaluation failed",
				zap.Int("index", i), zap.String("query", query), zap.Error(err))
		}
		results[i] = result
	}
	return results, nil
}

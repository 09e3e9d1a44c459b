package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// DefaultConcurrency bounds the execution worker pool when the caller
// does not configure one.
const DefaultConcurrency = 4

// ProviderFactory builds ready-to-use providers from configuration. The
// application layer depends on this narrow contract so engines are
// testable with in-memory factories.
type ProviderFactory interface {
	Create(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error)
}

// ExecutionEngine runs a batch of queries against one provider and
// produces a Run. The engine owns the run's lifecycle: it creates the
// record, transitions it through its states, and freezes it once
// terminal.
type ExecutionEngine struct {
	factory ProviderFactory
	store   ports.RunStore
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// ExecutionOption customizes an ExecutionEngine.
type ExecutionOption func(*ExecutionEngine)

// WithRunStore persists every finished run into the given store.
func WithRunStore(store ports.RunStore) ExecutionOption {
	return func(e *ExecutionEngine) { e.store = store }
}

// WithExecutionMetrics records run-level metrics into the collector.
func WithExecutionMetrics(collector ports.MetricsCollector) ExecutionOption {
	return func(e *ExecutionEngine) { e.metrics = collector }
}

// WithExecutionLogger attaches a logger to the engine.
func WithExecutionLogger(logger *zap.Logger) ExecutionOption {
	return func(e *ExecutionEngine) { e.logger = logger }
}

// NewExecutionEngine creates an execution engine over the given provider
// factory.
func NewExecutionEngine(factory ProviderFactory, opts ...ExecutionOption) *ExecutionEngine {
	e := &ExecutionEngine{
		factory: factory,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteParams describes one run request.
type ExecuteParams struct {
	// Domain scopes the run; it must match the query set's declared
	// domain.
	Domain string

	// Label distinguishes repeated runs of the same triple.
	Label string

	// Provider is the configured instance to execute against.
	Provider domain.ProviderConfig

	// Credentials are the resolved secrets for the provider.
	Credentials domain.Credentials

	// QuerySet is the batch to execute.
	QuerySet domain.QuerySet

	// TopK bounds each query's result list.
	TopK int

	// Parallel dispatches queries to a bounded worker pool instead of
	// executing them in input order.
	Parallel bool

	// Concurrency caps the worker pool in parallel mode. Non-positive
	// selects DefaultConcurrency. The pool never exceeds the query
	// count.
	Concurrency int
}

// Execute runs the query set against the provider and returns the
// completed run. Engine-level failures before any query ran leave the
// run FAILED and return the cause; per-query provider failures are
// captured into the run's results and the run still completes.
// Both modes produce results in query-set order.
func (e *ExecutionEngine) Execute(ctx context.Context, params ExecuteParams) (*domain.Run, error) {
	if params.QuerySet.Domain != params.Domain {
		return nil, domain.NewRunError("", "precondition", fmt.Errorf(
			"query set %q belongs to domain %q, run requested domain %q",
			params.QuerySet.Name, params.QuerySet.Domain, params.Domain))
	}

	run := &domain.Run{
		ID:                     uuid.NewString(),
		Label:                  params.Label,
		Domain:                 params.Domain,
		Provider:               params.Provider.Name,
		QuerySet:               params.QuerySet.Name,
		Status:                 domain.RunPending,
		ProviderConfigSnapshot: params.Provider.Clone(),
		QuerySetSnapshot:       params.QuerySet.Clone(),
		StartedAt:              time.Now().UTC(),
	}
	logger := e.logger.With(
		zap.String("run_id", run.ID),
		zap.String("provider", run.Provider),
		zap.String("query_set", run.QuerySet))

	provider, err := e.factory.Create(params.Provider, params.Credentials)
	if err != nil {
		run.Transition(domain.RunFailed, time.Now().UTC())
		e.persist(ctx, run, logger)
		return run, domain.NewRunError(run.ID, "create provider", err)
	}

	if err := run.Transition(domain.RunRunning, time.Now().UTC()); err != nil {
		return run, domain.NewRunError(run.ID, "start", err)
	}
	logger.Info("run started",
		zap.Int("queries", len(params.QuerySet.Queries)),
		zap.Bool("parallel", params.Parallel))

	results := make([]domain.QueryResult, len(params.QuerySet.Queries))
	if params.Parallel {
		e.executeParallel(ctx, provider, params, results)
	} else {
		for i, q := range params.QuerySet.Queries {
			results[i] = e.executeQuery(ctx, provider, q, params.TopK)
		}
	}
	run.Results = results

	run.Transition(domain.RunCompleted, time.Now().UTC())
	e.persist(ctx, run, logger)

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if e.metrics != nil {
		status := "success"
		if failed > 0 {
			status = "partial"
		}
		e.metrics.RecordLatency("run", run.CompletedAt.Sub(run.StartedAt), map[string]string{
			"status": status,
		})
	}
	logger.Info("run completed",
		zap.Int("failed_queries", failed),
		zap.Duration("duration", run.CompletedAt.Sub(run.StartedAt)))
	return run, nil
}

// executeParallel dispatches queries to a bounded pool. Workers write
// into index-addressed slots, so output order matches input order
// regardless of completion order.
func (e *ExecutionEngine) executeParallel(ctx context.Context, provider ports.Provider, params ExecuteParams, results []domain.QueryResult) {
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(params.QuerySet.Queries) {
		concurrency = len(params.QuerySet.Queries)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, q := range params.QuerySet.Queries {
		wg.Add(1)
		go func(slot int, query domain.Query) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[slot] = e.executeQuery(ctx, provider, query, params.TopK)
		}(i, q)
	}
	wg.Wait()
}

// executeQuery runs one query in isolation. Provider errors and panics
// are captured into the result; nothing escapes to abort the batch.
func (e *ExecutionEngine) executeQuery(ctx context.Context, provider ports.Provider, query domain.Query, topK int) (result domain.QueryResult) {
	result = domain.QueryResult{Query: query.Text, Reference: query.Reference}

	defer func() {
		if r := recover(); r != nil {
			result.Error = &domain.ErrorInfo{
				Provider: provider.Name(),
				Message:  fmt.Sprintf("provider panicked: %v", r),
			}
		}
	}()

	start := time.Now()
	chunks, err := provider.Search(ctx, query.Text, topK)
	result.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		result.Error = &domain.ErrorInfo{Provider: provider.Name(), Message: err.Error()}
		return result
	}
	result.Retrieved = chunks
	return result
}

// persist saves a terminal run when a store is configured. Persistence
// problems are logged, not returned: the run itself is already complete.
func (e *ExecutionEngine) persist(ctx context.Context, run *domain.Run, logger *zap.Logger) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, run); err != nil {
		logger.Warn("failed to persist run", zap.Error(err))
	}
}

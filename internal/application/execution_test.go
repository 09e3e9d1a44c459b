package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
	"github.com/ahrav/rag-arena/internal/testutils"
)

// recordingStore captures every saved run for assertions.
type recordingStore struct {
	mu    sync.Mutex
	saved []*domain.Run
}

func (s *recordingStore) Save(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, run)
	return nil
}

func (s *recordingStore) Load(context.Context, domain.RunKey) (*domain.Run, error) {
	return nil, ports.ErrRunNotFound
}

func (s *recordingStore) List(context.Context) ([]domain.RunKey, error) { return nil, nil }

var _ ports.RunStore = (*recordingStore)(nil)

// captureCollector keeps the labels of every recorded latency.
type captureCollector struct {
	mu        sync.Mutex
	latencies map[string]map[string]string
}

func (c *captureCollector) RecordLatency(operation string, _ time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latencies == nil {
		c.latencies = make(map[string]map[string]string)
	}
	c.latencies[operation] = labels
}

func (c *captureCollector) RecordCounter(string, float64, map[string]string) {}

func (c *captureCollector) RecordHistogram(string, float64, map[string]string) {}

var _ ports.MetricsCollector = (*captureCollector)(nil)

func legalQuerySet() domain.QuerySet {
	return domain.QuerySet{
		Name:   "contracts-v1",
		Domain: "legal",
		Queries: []domain.Query{
			{Text: "termination clauses", Reference: "section 9"},
			{Text: "liability caps"},
			{Text: "governing law"},
		},
	}
}

func executeParams(qs domain.QuerySet) ExecuteParams {
	return ExecuteParams{
		Domain:   qs.Domain,
		Label:    "baseline",
		Provider: domain.ProviderConfig{Name: "p1", Tool: testutils.FakeAdapterName},
		QuerySet: qs,
		TopK:     5,
	}
}

func TestExecuteCompletesRun(t *testing.T) {
	provider := &testutils.FakeProvider{
		ProviderName: "p1",
		Chunks: []domain.RagResult{
			{ID: "c1", Text: "chunk one", Score: 0.9},
			{ID: "c2", Text: "chunk two", Score: 0.4},
		},
	}
	store := &recordingStore{}
	engine := NewExecutionEngine(
		&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": provider}},
		WithRunStore(store),
	)

	qs := legalQuerySet()
	run, err := engine.Execute(context.Background(), executeParams(qs))
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "legal", run.Domain)
	require.NotNil(t, run.CompletedAt)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))

	require.Len(t, run.Results, 3)
	for i, result := range run.Results {
		assert.Equal(t, qs.Queries[i].Text, result.Query)
		assert.Equal(t, qs.Queries[i].Reference, result.Reference)
		assert.Nil(t, result.Error)
		assert.Len(t, result.Retrieved, 2)
	}
	assert.Equal(t, []string{"termination clauses", "liability caps", "governing law"},
		provider.Queries(), "sequential mode preserves input order")

	require.Len(t, store.saved, 1)
	assert.Equal(t, run.ID, store.saved[0].ID)
}

func TestExecuteSnapshotsConfiguration(t *testing.T) {
	provider := &testutils.FakeProvider{ProviderName: "p1"}
	engine := NewExecutionEngine(
		&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": provider}})

	params := executeParams(legalQuerySet())
	params.Provider.Options = map[string]any{"index": "docs"}

	run, err := engine.Execute(context.Background(), params)
	require.NoError(t, err)

	params.Provider.Options["index"] = "mutated"
	assert.Equal(t, "docs", run.ProviderConfigSnapshot.Options["index"],
		"snapshot is detached from the caller's configuration")
	assert.Equal(t, 3, len(run.QuerySetSnapshot.Queries))
}

func TestExecuteDomainMismatch(t *testing.T) {
	engine := NewExecutionEngine(&testutils.FakeFactory{})

	params := executeParams(legalQuerySet())
	params.Domain = "medical"

	run, err := engine.Execute(context.Background(), params)
	assert.Nil(t, run)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "precondition", runErr.Stage)
}

func TestExecuteFactoryFailure(t *testing.T) {
	cause := errors.New("no such adapter")
	store := &recordingStore{}
	engine := NewExecutionEngine(
		&testutils.FakeFactory{CreateErr: cause},
		WithRunStore(store))

	run, err := engine.Execute(context.Background(), executeParams(legalQuerySet()))
	require.NotNil(t, run)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Empty(t, run.Results)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, run.ID, runErr.RunID)
	assert.ErrorIs(t, err, cause)

	require.Len(t, store.saved, 1, "failed runs are persisted too")
	assert.Equal(t, domain.RunFailed, store.saved[0].Status)
}

func TestExecuteQueryIsolation(t *testing.T) {
	tests := []struct {
		name     string
		provider *testutils.FakeProvider
		message  string
	}{
		{
			name:     "search error",
			provider: &testutils.FakeProvider{ProviderName: "p1", SearchErr: errors.New("index offline")},
			message:  "index offline",
		},
		{
			name:     "panic",
			provider: &testutils.FakeProvider{ProviderName: "p1", PanicMessage: "nil deref"},
			message:  "provider panicked: nil deref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewExecutionEngine(
				&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": tt.provider}})

			run, err := engine.Execute(context.Background(), executeParams(legalQuerySet()))
			require.NoError(t, err, "per-query failures never fail the run")
			assert.Equal(t, domain.RunCompleted, run.Status)

			require.Len(t, run.Results, 3)
			for _, result := range run.Results {
				require.NotNil(t, result.Error)
				assert.Equal(t, "p1", result.Error.Provider)
				assert.Contains(t, result.Error.Message, tt.message)
				assert.Empty(t, result.Retrieved)
			}
			assert.Equal(t, 3, tt.provider.Calls(), "every query is still attempted")
		})
	}
}

func TestExecuteRunMetricsStatus(t *testing.T) {
	tests := []struct {
		name     string
		provider *testutils.FakeProvider
		want     string
	}{
		{
			name:     "all queries succeed",
			provider: &testutils.FakeProvider{ProviderName: "p1", Chunks: chunksFor("x")},
			want:     "success",
		},
		{
			name:     "failed queries mark the run partial",
			provider: &testutils.FakeProvider{ProviderName: "p1", SearchErr: errors.New("index offline")},
			want:     "partial",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := &captureCollector{}
			engine := NewExecutionEngine(
				&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": tt.provider}},
				WithExecutionMetrics(collector))

			_, err := engine.Execute(context.Background(), executeParams(legalQuerySet()))
			require.NoError(t, err)

			labels, ok := collector.latencies["run"]
			require.True(t, ok)
			assert.Equal(t, tt.want, labels["status"])
		})
	}
}

func TestExecuteMeasuresQueryDuration(t *testing.T) {
	// Sub-millisecond calls must still report a positive fractional
	// duration instead of truncating to zero.
	provider := &testutils.FakeProvider{
		ProviderName: "p1",
		Chunks:       []domain.RagResult{{ID: "c", Text: "chunk", Score: 1}},
		Delay:        200 * time.Microsecond,
	}
	engine := NewExecutionEngine(
		&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": provider}})

	run, err := engine.Execute(context.Background(), executeParams(legalQuerySet()))
	require.NoError(t, err)

	for _, result := range run.Results {
		assert.Greater(t, result.DurationMS, 0.0)
	}
}

func TestExecuteParallelMatchesSequentialOrder(t *testing.T) {
	qs := domain.QuerySet{Name: "wide", Domain: "legal"}
	for _, text := range []string{"q0", "q1", "q2", "q3", "q4", "q5", "q6", "q7"} {
		qs.Queries = append(qs.Queries, domain.Query{Text: text})
	}

	provider := &testutils.FakeProvider{
		ProviderName: "p1",
		Chunks:       []domain.RagResult{{ID: "c", Text: "chunk", Score: 1}},
		Delay:        2 * time.Millisecond,
	}
	engine := NewExecutionEngine(
		&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": provider}})

	params := executeParams(qs)
	params.QuerySet = qs
	params.Parallel = true
	params.Concurrency = 3

	run, err := engine.Execute(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, run.Results, len(qs.Queries))
	for i, result := range run.Results {
		assert.Equal(t, qs.Queries[i].Text, result.Query,
			"results line up with input order regardless of completion order")
	}

	got := provider.Queries()
	sort.Strings(got)
	assert.Equal(t, []string{"q0", "q1", "q2", "q3", "q4", "q5", "q6", "q7"}, got)
}

func TestExecuteParallelSingleQuery(t *testing.T) {
	provider := &testutils.FakeProvider{
		ProviderName: "p1",
		Chunks:       []domain.RagResult{{ID: "c", Text: "chunk", Score: 1}},
	}
	engine := NewExecutionEngine(
		&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": provider}})

	params := executeParams(domain.QuerySet{
		Name:    "single",
		Domain:  "legal",
		Queries: []domain.Query{{Text: "only"}},
	})
	params.Parallel = true
	params.Concurrency = 64

	run, err := engine.Execute(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "only", run.Results[0].Query)
}

func TestRunKeyRoundTrip(t *testing.T) {
	provider := &testutils.FakeProvider{ProviderName: "p1"}
	engine := NewExecutionEngine(
		&testutils.FakeFactory{Providers: map[string]ports.Provider{"p1": provider}})

	run, err := engine.Execute(context.Background(), executeParams(legalQuerySet()))
	require.NoError(t, err)

	key := run.Key()
	assert.Equal(t, "legal/p1/contracts-v1/baseline", key.String())
}

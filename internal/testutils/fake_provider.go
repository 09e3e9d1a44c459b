// Package testutils provides in-memory fakes for engine and adapter
// tests. Nothing here touches the network.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// FakeAdapterName is the registry key tests register the fake provider
// under.
const FakeAdapterName = "fake"

var _ ports.Provider = (*FakeProvider)(nil)

// FakeProvider is a scripted retrieval back-end. It returns configured
// chunks or errors, optionally delays to simulate latency, and records
// every call for assertions. When constructed through the registry it
// echoes its resolved credential into the first chunk's metadata so
// isolation tests can verify which secret an instance observed.
// FakeProvider is safe for concurrent use.
type FakeProvider struct {
	// ProviderName is returned by Name.
	ProviderName string

	// Chunks are returned by Search, truncated to topK.
	Chunks []domain.RagResult

	// SearchErr, when set, fails every Search call.
	SearchErr error

	// ValidateErr, when set, fails ValidateConfig.
	ValidateErr error

	// Delay blocks each Search until it elapses or the context expires.
	Delay time.Duration

	// Secret is echoed into chunk metadata under "credential".
	Secret string

	// PanicMessage, when set, makes Search panic.
	PanicMessage string

	mu      sync.Mutex
	queries []string
}

// Name returns the configured instance name.
func (f *FakeProvider) Name() string { return f.ProviderName }

// ValidateConfig returns the scripted validation outcome.
func (f *FakeProvider) ValidateConfig() error { return f.ValidateErr }

// Search records the query and returns the scripted outcome.
func (f *FakeProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.PanicMessage != "" {
		panic(f.PanicMessage)
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.SearchErr != nil {
		return nil, f.SearchErr
	}

	chunks := make([]domain.RagResult, 0, len(f.Chunks))
	for i, c := range f.Chunks {
		if i == topK {
			break
		}
		if f.Secret != "" {
			c.Metadata = map[string]any{"credential": f.Secret}
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Queries returns a copy of every query Search received, in call order.
func (f *FakeProvider) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

// Calls returns how many times Search was invoked.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// FakeSpec scripts the behavior of providers built through
// NewFakeConstructor.
type FakeSpec struct {
	Chunks       []domain.RagResult
	SearchErr    error
	ValidateErr  error
	Delay        time.Duration
	PanicMessage string
}

// NewFakeConstructor returns a registry constructor producing fake
// providers that echo the credential named by the "api_key_env" option.
func NewFakeConstructor(spec FakeSpec) ports.ProviderConstructor {
	return func(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
		instance := &FakeProvider{
			ProviderName: cfg.Name,
			Chunks:       spec.Chunks,
			SearchErr:    spec.SearchErr,
			ValidateErr:  spec.ValidateErr,
			Delay:        spec.Delay,
			PanicMessage: spec.PanicMessage,
		}
		if keyName, ok := cfg.Options["api_key_env"].(string); ok {
			instance.Secret = creds[keyName]
		}
		return instance, nil
	}
}

// FakeFactory is an in-memory ProviderFactory for engine tests. It
// hands out pre-registered providers by configuration name.
type FakeFactory struct {
	// Providers maps configuration names to instances.
	Providers map[string]ports.Provider

	// CreateErr, when set, fails every Create call.
	CreateErr error
}

// Create returns the provider registered under the configuration's
// name.
func (f *FakeFactory) Create(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if p, ok := f.Providers[cfg.Name]; ok {
		return p, nil
	}
	return nil, &domain.ConfigurationError{
		Reason: "no fake provider registered under " + cfg.Name,
		Err:    domain.ErrUnknownProvider,
	}
}

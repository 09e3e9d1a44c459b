// Package ports defines the interfaces that connect the domain and
// application layers to the infrastructure layer. These interfaces enable
// dependency inversion and make the engines testable with in-memory fakes.
package ports

import (
	"context"

	"github.com/ahrav/rag-arena/internal/domain"
)

// Provider is the capability interface every retrieval back-end
// implements. Callers hold this interface, never a concrete vendor type.
// Implementations own their own HTTP clients, authentication, and
// timeouts; the engines only rely on the Search contract.
// Providers must be safe for concurrent use.
type Provider interface {
	// Name returns the configured instance name of this provider.
	Name() string

	// Search runs the query against the back-end and returns ranked
	// chunks, best first, at most topK of them. Scores are normalized
	// into [0, 1] before they leave the adapter.
	// Implementations respect context cancellation and bound each call
	// with their own configured timeout.
	Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error)

	// ValidateConfig checks that the provider's options are complete and
	// well-formed. It is called at construction time, before any
	// network activity.
	ValidateConfig() error
}

// ProviderConstructor builds a provider instance from its validated
// configuration and explicitly passed credentials. Constructors must not
// read or write process-wide environment state.
type ProviderConstructor func(cfg domain.ProviderConfig, creds domain.Credentials) (Provider, error)

// AdapterInfo describes a registered provider type for discovery and
// diagnostics.
type AdapterInfo struct {
	// Name is the registry key.
	Name string `json:"name"`

	// APIVersion is the capability version the adapter declares.
	APIVersion string `json:"api_version"`

	// RequiredEnvVars lists the secret names the adapter needs resolved.
	RequiredEnvVars []string `json:"required_env_vars,omitempty"`

	// OptionsSchema maps option keys to short human-readable
	// descriptions of their type and meaning.
	OptionsSchema map[string]string `json:"options_schema,omitempty"`
}

// Registry is the catalog of provider-type constructors. Implementations
// reject duplicate names instead of shadowing earlier registrations.
type Registry interface {
	// Register adds a constructor under the given name. It fails with a
	// *domain.RegistryError when the name is empty or already taken.
	// A capability-version mismatch is accepted with a recorded warning.
	Register(name string, ctor ProviderConstructor, info AdapterInfo) error

	// Get returns the constructor for the name, or false when absent.
	// Get never fails.
	Get(name string) (ProviderConstructor, bool)

	// Info returns the adapter descriptor for the name, or false when
	// absent.
	Info(name string) (AdapterInfo, bool)

	// List returns all registered names in sorted order.
	List() []string

	// Describe returns adapter descriptors for all registered types,
	// sorted by name.
	Describe() []AdapterInfo
}

// Evaluator judges an aggregated comparison and produces a per-provider
// scoring. Evaluation runs only after aggregation is complete; a failure
// here never invalidates collected retrieval results.
type Evaluator interface {
	// Evaluate scores the comparison's tool results. It fails with a
	// *domain.EvaluationError when the judgment cannot be produced.
	Evaluate(ctx context.Context, result *domain.ComparisonResult) (*domain.Evaluation, error)
}

// RunStore persists run records addressable by (domain, provider,
// query set, label). Load must reproduce the identical in-memory
// structure that was saved, snapshots included.
type RunStore interface {
	// Save persists the run under its key, replacing any previous record.
	Save(ctx context.Context, run *domain.Run) error

	// Load retrieves the run stored under the key. It fails with
	// ErrRunNotFound when no record exists.
	Load(ctx context.Context, key domain.RunKey) (*domain.Run, error)

	// List returns the keys of all persisted runs, sorted by their
	// string form for reproducible diagnostics.
	List(ctx context.Context) ([]domain.RunKey, error)
}

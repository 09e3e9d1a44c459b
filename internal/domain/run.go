package domain

import (
	"fmt"
	"time"
)

// RunStatus tracks the lifecycle of a Run.
type RunStatus string

const (
	// RunPending is the only initial state.
	RunPending RunStatus = "PENDING"

	// RunRunning means the engine has started dispatching queries.
	RunRunning RunStatus = "RUNNING"

	// RunCompleted means every query was attempted, even if some failed.
	RunCompleted RunStatus = "COMPLETED"

	// RunFailed means an engine-level error occurred before any query ran.
	RunFailed RunStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal runs are frozen:
// the owning engine stops mutating them and they become safe to share.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// CanTransition reports whether moving to the target status is a legal
// lifecycle step. PENDING→RUNNING happens once; RUNNING→{COMPLETED,FAILED}
// happens once; PENDING→FAILED covers engine errors before dispatch.
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case RunPending:
		return to == RunRunning || to == RunFailed
	case RunRunning:
		return to == RunCompleted || to == RunFailed
	default:
		return false
	}
}

// Query is a single item of a query set.
type Query struct {
	// Text is the query to execute.
	Text string `json:"text" yaml:"text"`

	// Reference is an optional expected answer carried into results.
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// QuerySet is a named, domain-scoped batch of queries.
type QuerySet struct {
	// Name identifies the set.
	Name string `json:"name" yaml:"name"`

	// Domain names the subject area the queries belong to. The execution
	// engine refuses query sets whose domain does not match the run's.
	Domain string `json:"domain" yaml:"domain"`

	// Queries are executed in order.
	Queries []Query `json:"queries" yaml:"queries"`
}

// Clone returns a deep copy, used for snapshotting into runs.
func (qs QuerySet) Clone() QuerySet {
	out := qs
	out.Queries = make([]Query, len(qs.Queries))
	copy(out.Queries, qs.Queries)
	return out
}

// ProviderConfig describes one configured provider instance. It is
// immutable once constructed from a validated configuration document.
type ProviderConfig struct {
	// Name is the unique instance key within a configuration.
	Name string `json:"name"`

	// Tool is the registry key selecting the adapter implementation.
	Tool string `json:"tool"`

	// Options holds adapter-specific settings.
	Options map[string]any `json:"options,omitempty"`
}

// Clone returns a deep copy so configurations built from the same document
// never share mutable option maps.
func (pc ProviderConfig) Clone() ProviderConfig {
	out := pc
	if pc.Options != nil {
		out.Options = make(map[string]any, len(pc.Options))
		for k, v := range pc.Options {
			out.Options[k] = normalizeValue(v)
		}
	}
	return out
}

// Credentials maps secret names to values. It is passed explicitly by
// value through the call chain and never written into the process
// environment.
type Credentials map[string]string

// Clone returns an independent copy of the credential map.
func (c Credentials) Clone() Credentials {
	if c == nil {
		return nil
	}
	out := make(Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Run is one execution of a query set against one provider. It is created
// at execution start, mutated only by the engine that owns it, and frozen
// once Status reaches a terminal state.
type Run struct {
	// ID is a UUID assigned at creation.
	ID string `json:"id"`

	// Label distinguishes repeated runs of the same triple.
	Label string `json:"label"`

	// Domain scopes the run to a subject area.
	Domain string `json:"domain"`

	// Provider names the provider instance the run executed against.
	Provider string `json:"provider"`

	// QuerySet names the query set that was executed.
	QuerySet string `json:"query_set"`

	// Status is the lifecycle state.
	Status RunStatus `json:"status"`

	// Results holds one entry per query, in query-set order.
	Results []QueryResult `json:"results,omitempty"`

	// ProviderConfigSnapshot captures the provider configuration at run
	// time, by value, so reloaded runs reproduce the exact setup.
	ProviderConfigSnapshot ProviderConfig `json:"provider_config_snapshot"`

	// QuerySetSnapshot captures the query set at run time, by value.
	QuerySetSnapshot QuerySet `json:"query_set_snapshot"`

	// StartedAt records when the engine created the run.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt records when the run reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Transition moves the run to the target status, enforcing the lifecycle
// state machine. Terminal transitions stamp CompletedAt.
func (r *Run) Transition(to RunStatus, at time.Time) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("run %s: illegal status transition %s -> %s", r.ID, r.Status, to)
	}
	r.Status = to
	if to.Terminal() {
		t := at
		r.CompletedAt = &t
	}
	return nil
}

// Key returns the address a persisted run is stored and looked up under.
func (r *Run) Key() RunKey {
	return RunKey{Domain: r.Domain, Provider: r.Provider, QuerySet: r.QuerySet, Label: r.Label}
}

// RunKey addresses a persisted run record.
type RunKey struct {
	Domain   string `json:"domain"`
	Provider string `json:"provider"`
	QuerySet string `json:"query_set"`
	Label    string `json:"label"`
}

// String renders the key as a stable slash-separated path fragment.
func (k RunKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Domain, k.Provider, k.QuerySet, k.Label)
}

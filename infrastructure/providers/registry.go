// Package providers implements the provider-type registry, the factory
// that turns validated configuration into ready-to-use provider
// instances, the built-in retrieval adapters, and the middleware chain
// applied to every provider's Search capability.
package providers

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// ExpectedAPIMajor is the capability major version this engine was built
// against. Adapters declaring a different major version still register,
// but the mismatch is recorded as a warning because providers evolve
// independently of the engine.
const ExpectedAPIMajor = 1

// Verify interface compliance at compile time.
var _ ports.Registry = (*Registry)(nil)

// Registry is the central catalog of provider-type constructors, keyed by
// a stable string name. Names are case-sensitive exact matches; duplicate
// registration fails instead of shadowing the earlier entry.
// Registry is safe for concurrent use.
type Registry struct {
	// ctors maps tool names to their constructors.
	ctors map[string]ports.ProviderConstructor
	// infos maps tool names to their adapter descriptors.
	infos map[string]ports.AdapterInfo
	// warnings accumulates non-fatal registration diagnostics such as
	// capability-version mismatches.
	warnings []string
	// mu guards all registry state.
	mu sync.RWMutex
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors: make(map[string]ports.ProviderConstructor),
		infos: make(map[string]ports.AdapterInfo),
	}
}

// DefaultRegistry is a process-wide convenience instance. It is an
// ordinary value: nothing registers into it implicitly, callers opt in
// with an explicit RegisterBuiltins call at process start.
var DefaultRegistry = NewRegistry()

// Register adds a constructor under the given name. Registration fails
// with a *domain.RegistryError when the name is empty, the constructor is
// nil, or the name is already taken. A declared capability version whose
// major differs from ExpectedAPIMajor is accepted with a recorded
// warning.
func (r *Registry) Register(name string, ctor ports.ProviderConstructor, info ports.AdapterInfo) error {
	if name == "" {
		return domain.NewRegistryError(name, errors.New("name cannot be empty"))
	}
	if ctor == nil {
		return domain.NewRegistryError(name, errors.New("constructor cannot be nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		return domain.NewRegistryError(name, domain.ErrDuplicateProvider)
	}

	if info.Name == "" {
		info.Name = name
	}
	if major, err := parseMajorVersion(info.APIVersion); err == nil && major != ExpectedAPIMajor {
		r.warnings = append(r.warnings, fmt.Sprintf(
			"adapter %q declares api version %s, engine expects major %d",
			name, info.APIVersion, ExpectedAPIMajor))
	}

	r.ctors[name] = ctor
	r.infos[name] = info
	return nil
}

// Get returns the constructor registered under name. It is a pure lookup
// and never fails; absence is reported through the boolean.
func (r *Registry) Get(name string) (ports.ProviderConstructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctor, ok := r.ctors[name]
	return ctor, ok
}

// Info returns the adapter descriptor registered under name, or false
// when absent.
func (r *Registry) Info(name string) (ports.AdapterInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.infos[name]
	return info, ok
}

// List returns all registered names in sorted order so diagnostics are
// reproducible.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the adapter descriptors for every registered type,
// sorted by name.
func (r *Registry) Describe() []ports.AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ports.AdapterInfo, 0, len(r.infos))
	for _, info := range r.infos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Warnings returns the non-fatal diagnostics recorded during
// registration, in registration order.
func (r *Registry) Warnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// parseMajorVersion extracts the major component from a version string
// such as "1.2", "v1.0", or "2".
func parseMajorVersion(version string) (int, error) {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if v == "" {
		return 0, errors.New("empty version")
	}
	head, _, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("parse major version %q: %w", version, err)
	}
	return major, nil
}

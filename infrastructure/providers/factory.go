package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// DefaultSearchTimeout bounds a provider call when the configuration does
// not set its own timeout.
const DefaultSearchTimeout = 30 * time.Second

// Factory instantiates configured provider instances via the registry and
// wraps them with the middleware chain. Instances are cached per
// (config, credentials) pair so repeated lookups inside one process reuse
// clients, while configurations with different credentials never share
// state.
// Factory is safe for concurrent use.
type Factory struct {
	// registry resolves tool names to constructors.
	registry ports.Registry
	// metrics receives Search metrics for every created provider.
	// A nil collector disables collection.
	metrics ports.MetricsCollector
	// tracing toggles the OpenTelemetry span wrapper.
	tracing bool
	// cache stores created providers indexed by config+credential hash.
	cache map[string]ports.Provider
	// cacheMu guards the cache map.
	cacheMu sync.RWMutex
	// sf prevents duplicate construction when multiple goroutines request
	// the same provider simultaneously.
	sf singleflight.Group
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithMetrics attaches a metrics collector to every created provider.
func WithMetrics(collector ports.MetricsCollector) FactoryOption {
	return func(f *Factory) { f.metrics = collector }
}

// WithTracing enables the OpenTelemetry span wrapper on created
// providers.
func WithTracing() FactoryOption {
	return func(f *Factory) { f.tracing = true }
}

// NewFactory creates a provider factory backed by the given registry.
func NewFactory(registry ports.Registry, opts ...FactoryOption) *Factory {
	f := &Factory{
		registry: registry,
		cache:    make(map[string]ports.Provider),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds a ready-to-use provider from its configuration and
// resolved credentials. It fails with a *domain.ConfigurationError when
// the registry has no constructor for the tool, a required secret is
// absent at construction time, or the provider rejects its own options.
// Creation has no side effects beyond the provider's own client state.
func (f *Factory) Create(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
	ctor, ok := f.registry.Get(cfg.Tool)
	if !ok {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("provider %q references unknown tool %q", cfg.Name, cfg.Tool),
			Err:    domain.ErrUnknownProvider,
		}
	}

	// Second line of defense after Config.Validate: required secrets must
	// be present in the resolved credential map before construction.
	if info, ok := f.registry.Info(cfg.Tool); ok {
		var missing []string
		for _, name := range info.RequiredEnvVars {
			if creds[name] == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, &domain.ConfigurationError{
				Reason:  fmt.Sprintf("provider %q is missing required secrets", cfg.Name),
				Missing: missing,
				Err:     domain.ErrMissingCredential,
			}
		}
	}

	key, err := cacheKey(cfg, creds)
	if err != nil {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("provider %q has unhashable options", cfg.Name),
			Err:    err,
		}
	}

	f.cacheMu.RLock()
	if p, ok := f.cache[key]; ok {
		f.cacheMu.RUnlock()
		return p, nil
	}
	f.cacheMu.RUnlock()

	v, err, _ := f.sf.Do(key, func() (any, error) {
		f.cacheMu.RLock()
		if p, ok := f.cache[key]; ok {
			f.cacheMu.RUnlock()
			return p, nil
		}
		f.cacheMu.RUnlock()

		p, err := f.build(ctor, cfg, creds)
		if err != nil {
			return nil, err
		}

		f.cacheMu.Lock()
		f.cache[key] = p
		f.cacheMu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(ports.Provider), nil
}

// build constructs, validates, and wraps one provider instance.
func (f *Factory) build(ctor ports.ProviderConstructor, cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
	provider, err := ctor(cfg.Clone(), creds.Clone())
	if err != nil {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("failed to construct provider %q (tool %q)", cfg.Name, cfg.Tool),
			Err:    err,
		}
	}

	if err := provider.ValidateConfig(); err != nil {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("provider %q rejected its configuration", cfg.Name),
			Err:    err,
		}
	}

	return Chain(provider, f.middlewareFor(cfg)...), nil
}

// middlewareFor assembles the chain for one provider configuration.
// Order: tracing outermost, then metrics, rate limiting, retry, and the
// timeout closest to the network call so each attempt gets its own
// deadline.
func (f *Factory) middlewareFor(cfg domain.ProviderConfig) []Middleware {
	var chain []Middleware

	if f.tracing {
		chain = append(chain, TracingMiddleware())
	}
	if f.metrics != nil {
		chain = append(chain, MetricsMiddleware(f.metrics))
	}
	if limit := optFloat(cfg.Options, "rate_limit", 0); limit > 0 {
		burst := optInt(cfg.Options, "rate_burst", 1)
		chain = append(chain, RateLimitMiddleware(rate.Limit(limit), burst))
	}
	if retries := optInt(cfg.Options, "max_retries", 0); retries > 0 {
		chain = append(chain, RetryMiddleware(retries, DefaultRetryBaseDelay, DefaultRetryMaxDelay))
	}
	chain = append(chain, TimeoutMiddleware(optDuration(cfg.Options, "timeout_seconds", DefaultSearchTimeout)))

	return chain
}

// cacheKey derives a stable hash over the provider configuration and the
// credential map. Including credentials keeps tenants with distinct
// secrets on distinct instances.
func cacheKey(cfg domain.ProviderConfig, creds domain.Credentials) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", cfg.Name, cfg.Tool)

	opts, err := json.Marshal(cfg.Options)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	h.Write(opts)

	names := make([]string, 0, len(creds))
	for name := range creds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "\x00%s=%s", name, creds[name])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

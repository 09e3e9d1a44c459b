package providers

import "github.com/ahrav/rag-arena/internal/ports"

// Middleware wraps a Provider to add cross-cutting behavior around its
// Search capability. Chains compose timeouts, rate limiting, metrics, and
// tracing without touching adapter logic.
type Middleware func(ports.Provider) ports.Provider

// Chain applies middleware so the first element is the outermost wrapper.
func Chain(p ports.Provider, middleware ...Middleware) ports.Provider {
	for i := len(middleware) - 1; i >= 0; i-- {
		p = middleware[i](p)
	}
	return p
}

package application

import (
	"os"
	"regexp"

	"github.com/ahrav/rag-arena/internal/domain"
)

// placeholderPattern matches ${NAME} references in configuration string
// values.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// CredentialResolver resolves named secrets with a fixed precedence: the
// explicit credential map wins, the ambient process environment is the
// fallback. The resolver never writes to the environment, so resolvers
// built from different credential maps are fully isolated within one
// process.
type CredentialResolver struct {
	explicit domain.Credentials
	lookup   func(string) (string, bool)
}

// ResolverOption customizes a CredentialResolver.
type ResolverOption func(*CredentialResolver)

// WithEnvLookup replaces the ambient environment lookup. Tests use it to
// simulate environment state without mutating the real process
// environment.
func WithEnvLookup(lookup func(string) (string, bool)) ResolverOption {
	return func(r *CredentialResolver) { r.lookup = lookup }
}

// NewCredentialResolver creates a resolver over the given explicit
// credential map. The map is copied, so later caller mutations are not
// observed.
func NewCredentialResolver(explicit domain.Credentials, opts ...ResolverOption) *CredentialResolver {
	r := &CredentialResolver{
		explicit: explicit.Clone(),
		lookup:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the value of the named secret, consulting the explicit
// map first and the environment second. Empty values count as absent.
func (r *CredentialResolver) Resolve(name string) (string, bool) {
	if v, ok := r.explicit[name]; ok && v != "" {
		return v, true
	}
	if v, ok := r.lookup(name); ok && v != "" {
		return v, true
	}
	return "", false
}

// Substitute replaces every ${NAME} placeholder in the value using the
// resolver's precedence. Unresolved names are returned instead of being
// silently passed through; the caller surfaces them at validation time.
func (r *CredentialResolver) Substitute(value string) (string, []string) {
	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := r.Resolve(name); ok {
			return v
		}
		unresolved = append(unresolved, name)
		return match
	})
	return out, unresolved
}

// SubstituteOptions walks an option map and substitutes placeholders in
// every string value, including strings nested in slices and maps. It
// returns a new map; the input is never mutated.
func (r *CredentialResolver) SubstituteOptions(options map[string]any) (map[string]any, []string) {
	if options == nil {
		return nil, nil
	}
	var unresolved []string
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = r.substituteValue(v, &unresolved)
	}
	return out, unresolved
}

func (r *CredentialResolver) substituteValue(v any, unresolved *[]string) any {
	switch val := v.(type) {
	case string:
		sub, missing := r.Substitute(val)
		*unresolved = append(*unresolved, missing...)
		return sub
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.substituteValue(item, unresolved)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = r.substituteValue(item, unresolved)
		}
		return out
	default:
		return v
	}
}

// Package application contains the engines that orchestrate providers
// into runs and comparisons, and the configuration layer that feeds
// them. The package depends only on the domain and port layers;
// infrastructure is injected.
package application

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// Document is the declarative configuration a comparison loads from
// YAML. Presentation blocks (output, display) are carried for consumers
// outside the engines.
type Document struct {
	// Tools configures one provider instance per entry, in document
	// order.
	Tools ToolSet `yaml:"tools" validate:"required"`

	// LLM optionally configures the evaluation stage.
	LLM *LLMConfig `yaml:"llm"`

	// Output configures where and how results are written.
	Output OutputConfig `yaml:"output"`

	// Display configures presentation of comparison results.
	Display DisplayConfig `yaml:"display"`
}

// ToolConfig is one provider instance's block in the document.
type ToolConfig struct {
	// Tool selects the registered adapter.
	Tool string `yaml:"tool" validate:"required"`

	// APIKeyEnv names the secret holding the instance's API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Options carries adapter-specific settings.
	Options map[string]any `yaml:"options"`
}

// LLMConfig is the optional evaluator block.
type LLMConfig struct {
	// Vendor selects the evaluator backend. Defaults to "openai".
	Vendor string `yaml:"vendor"`

	// Model is the judge model identifier.
	Model string `yaml:"model"`

	// APIKeyEnv names the secret holding the evaluator's API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`

	// Temperature controls verdict randomness.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
}

// OutputConfig is presentation-only and consumed outside the engines.
type OutputConfig struct {
	Formats   []string `yaml:"formats"`
	OutputDir string   `yaml:"output_dir"`
}

// DisplayConfig is presentation-only and consumed outside the engines.
type DisplayConfig struct {
	MaxTextLength        int  `yaml:"max_text_length"`
	HighlightDifferences bool `yaml:"highlight_differences"`
}

// ToolSet preserves the document order of tool blocks. YAML mappings
// decode into Go maps with no order, so the order is captured from the
// node itself.
type ToolSet struct {
	order  []string
	byName map[string]ToolConfig
}

// UnmarshalYAML decodes the tools mapping while recording key order.
func (t *ToolSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("tools must be a mapping, got %s", node.Tag)
	}

	t.byName = make(map[string]ToolConfig, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if _, dup := t.byName[name]; dup {
			return fmt.Errorf("duplicate tool block %q", name)
		}
		var tc ToolConfig
		if err := node.Content[i+1].Decode(&tc); err != nil {
			return fmt.Errorf("decode tool %q: %w", name, err)
		}
		t.order = append(t.order, name)
		t.byName[name] = tc
	}
	return nil
}

// Names returns the tool names in document order.
func (t ToolSet) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Get returns the tool block under name, or false when absent.
func (t ToolSet) Get(name string) (ToolConfig, bool) {
	tc, ok := t.byName[name]
	return tc, ok
}

// Len returns the number of configured tools.
func (t ToolSet) Len() int { return len(t.order) }

// ParseDocument decodes and structurally validates a YAML configuration
// document. Secret resolution happens later, in Config.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, &domain.ConfigurationError{
			Reason: "configuration document is not valid YAML",
			Err:    err,
		}
	}

	validate := validator.New()
	if err := validate.Struct(doc); err != nil {
		return Document{}, &domain.ConfigurationError{
			Reason: "configuration document failed validation",
			Err:    err,
		}
	}
	// Tool blocks live behind ToolSet's custom decoding, so the struct
	// walk above never sees them.
	for _, name := range doc.Tools.Names() {
		tc, _ := doc.Tools.Get(name)
		if err := validate.Struct(tc); err != nil {
			return Document{}, &domain.ConfigurationError{
				Reason: fmt.Sprintf("tool %q failed validation", name),
				Err:    err,
			}
		}
	}
	if doc.Tools.Len() == 0 {
		return Document{}, &domain.ConfigurationError{
			Reason: "configuration document declares no tools",
			Err:    domain.ErrInvalidConfiguration,
		}
	}
	return doc, nil
}

// Config binds a parsed document to one credential map. Two Configs
// built from the same document with different credential maps are fully
// isolated: provider configurations are deep-copied per call and the
// resolver never touches ambient environment state.
// Config is immutable after construction and safe for concurrent use.
type Config struct {
	doc      Document
	resolver *CredentialResolver
	registry ports.Registry
}

// NewConfig binds the document to an explicit credential map. A nil
// registry disables the required-secret checks that rely on adapter
// descriptors.
func NewConfig(doc Document, creds domain.Credentials, registry ports.Registry, opts ...ResolverOption) *Config {
	return &Config{
		doc:      doc,
		resolver: NewCredentialResolver(creds, opts...),
		registry: registry,
	}
}

// ProviderNames returns the configured provider names in document order.
func (c *Config) ProviderNames() []string { return c.doc.Tools.Names() }

// LLMConfigured reports whether the document carries an evaluator block.
func (c *Config) LLMConfigured() bool { return c.doc.LLM != nil }

// Display returns the presentation block.
func (c *Config) Display() DisplayConfig { return c.doc.Display }

// Output returns the output block.
func (c *Config) Output() OutputConfig { return c.doc.Output }

// Provider resolves one tool block into a provider configuration and
// the credential map its constructor needs. Each call returns fresh
// copies.
func (c *Config) Provider(name string) (domain.ProviderConfig, domain.Credentials, error) {
	tc, ok := c.doc.Tools.Get(name)
	if !ok {
		return domain.ProviderConfig{}, nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("unknown provider %q, configured: %s",
				name, strings.Join(c.ProviderNames(), ", ")),
			Err: domain.ErrUnknownProvider,
		}
	}

	options, unresolved := c.resolver.SubstituteOptions(tc.Options)
	if len(unresolved) > 0 {
		return domain.ProviderConfig{}, nil, &domain.ConfigurationError{
			Reason:  fmt.Sprintf("provider %q has unresolved placeholders", name),
			Missing: dedupe(unresolved),
			Err:     domain.ErrUnresolvedPlaceholder,
		}
	}
	if options == nil {
		options = make(map[string]any)
	}
	if tc.APIKeyEnv != "" {
		options["api_key_env"] = tc.APIKeyEnv
	}

	creds := make(domain.Credentials)
	for _, secret := range c.secretNames(tc) {
		if value, ok := c.resolver.Resolve(secret); ok {
			creds[secret] = value
		}
	}

	cfg := domain.ProviderConfig{Name: name, Tool: tc.Tool, Options: options}
	return cfg.Clone(), creds, nil
}

// Evaluator resolves the evaluator block into its settings and API key.
func (c *Config) Evaluator() (LLMConfig, string, error) {
	if c.doc.LLM == nil {
		return LLMConfig{}, "", &domain.ConfigurationError{
			Reason: "no evaluator is configured",
			Err:    domain.ErrInvalidConfiguration,
		}
	}

	llm := *c.doc.LLM
	if llm.Vendor == "" {
		llm.Vendor = "openai"
	}
	key, ok := c.resolver.Resolve(llm.APIKeyEnv)
	if !ok {
		return LLMConfig{}, "", &domain.ConfigurationError{
			Reason:  "evaluator API key is not resolvable",
			Missing: []string{llm.APIKeyEnv},
			Err:     domain.ErrMissingCredential,
		}
	}
	return llm, key, nil
}

// Validate checks that every declared secret resolves and every
// placeholder substitutes. It fails with a *domain.ConfigurationError
// naming all missing variables at once.
func (c *Config) Validate() error {
	var missing []string

	for _, name := range c.doc.Tools.Names() {
		tc, _ := c.doc.Tools.Get(name)

		for _, secret := range c.secretNames(tc) {
			if _, ok := c.resolver.Resolve(secret); !ok {
				missing = append(missing, secret)
			}
		}
		_, unresolved := c.resolver.SubstituteOptions(tc.Options)
		missing = append(missing, unresolved...)
	}

	if c.doc.LLM != nil {
		if _, ok := c.resolver.Resolve(c.doc.LLM.APIKeyEnv); !ok {
			missing = append(missing, c.doc.LLM.APIKeyEnv)
		}
	}

	if len(missing) > 0 {
		return &domain.ConfigurationError{
			Reason:  "configuration references unresolvable secrets",
			Missing: dedupe(missing),
			Err:     domain.ErrMissingCredential,
		}
	}
	return nil
}

// secretNames collects the secret names a tool block declares: its
// api_key_env, every *_env-suffixed option value, and the adapter's own
// required variables.
func (c *Config) secretNames(tc ToolConfig) []string {
	var secrets []string
	if tc.APIKeyEnv != "" {
		secrets = append(secrets, tc.APIKeyEnv)
	}
	for key, value := range tc.Options {
		if !strings.HasSuffix(key, "_env") {
			continue
		}
		if secret, ok := value.(string); ok && secret != "" {
			secrets = append(secrets, secret)
		}
	}
	if c.registry != nil {
		if info, ok := c.registry.Info(tc.Tool); ok {
			secrets = append(secrets, info.RequiredEnvVars...)
		}
	}
	return dedupe(secrets)
}

// dedupe returns the sorted unique entries of names.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

package providers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// credEchoProvider returns the credential it was constructed with as its
// only chunk, which makes credential leakage across instances visible.
type credEchoProvider struct {
	name   string
	secret string
}

func (p *credEchoProvider) Name() string { return p.name }

func (p *credEchoProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	return []domain.RagResult{{ID: "c1", Text: p.secret, Score: 1.0}}, nil
}

func (p *credEchoProvider) ValidateConfig() error { return nil }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	ctor := func(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
		return &credEchoProvider{name: cfg.Name, secret: creds["API_KEY"]}, nil
	}
	require.NoError(t, r.Register("echo", ctor, ports.AdapterInfo{
		Name:            "echo",
		APIVersion:      BuiltinAPIVersion,
		RequiredEnvVars: []string{"API_KEY"},
	}))
	return r
}

func TestFactoryCreateUnknownTool(t *testing.T) {
	f := NewFactory(newTestRegistry(t))

	_, err := f.Create(domain.ProviderConfig{Name: "p1", Tool: "nope"}, nil)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	assert.Contains(t, cfgErr.Reason, "nope")
}

func TestFactoryCreateMissingSecret(t *testing.T) {
	f := NewFactory(newTestRegistry(t))

	_, err := f.Create(domain.ProviderConfig{Name: "p1", Tool: "echo"}, domain.Credentials{})

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Equal(t, []string{"API_KEY"}, cfgErr.Missing)
}

func TestFactoryCreateRejectedConfig(t *testing.T) {
	r := NewRegistry()
	ctor := func(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
		return &stubProvider{name: cfg.Name, validateErr: errors.New("endpoint unreachable")}, nil
	}
	require.NoError(t, r.Register("broken", ctor, ports.AdapterInfo{}))
	f := NewFactory(r)

	_, err := f.Create(domain.ProviderConfig{Name: "p1", Tool: "broken"}, nil)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "endpoint unreachable")
}

func TestFactoryCredentialIsolation(t *testing.T) {
	f := NewFactory(newTestRegistry(t))
	cfg := domain.ProviderConfig{Name: "shared-name", Tool: "echo"}

	teamA, err := f.Create(cfg, domain.Credentials{"API_KEY": "secret-a"})
	require.NoError(t, err)
	teamB, err := f.Create(cfg, domain.Credentials{"API_KEY": "secret-b"})
	require.NoError(t, err)

	chunksA, err := teamA.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	chunksB, err := teamB.Search(context.Background(), "q", 1)
	require.NoError(t, err)

	assert.Equal(t, "secret-a", chunksA[0].Text)
	assert.Equal(t, "secret-b", chunksB[0].Text)
}

func TestFactoryCachesIdenticalRequests(t *testing.T) {
	var constructions int
	r := NewRegistry()
	ctor := func(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
		constructions++
		return &stubProvider{name: cfg.Name}, nil
	}
	require.NoError(t, r.Register("counted", ctor, ports.AdapterInfo{}))
	f := NewFactory(r)

	cfg := domain.ProviderConfig{Name: "p1", Tool: "counted", Options: map[string]any{"timeout_seconds": 5}}
	creds := domain.Credentials{"API_KEY": "k"}

	first, err := f.Create(cfg, creds)
	require.NoError(t, err)
	second, err := f.Create(cfg, creds)
	require.NoError(t, err)

	assert.Equal(t, 1, constructions)
	assert.Same(t, first, second)
}

func TestFactoryConcurrentCreateBuildsOnce(t *testing.T) {
	var mu sync.Mutex
	constructions := 0

	r := NewRegistry()
	ctor := func(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
		mu.Lock()
		constructions++
		mu.Unlock()
		return &stubProvider{name: cfg.Name}, nil
	}
	require.NoError(t, r.Register("counted", ctor, ports.AdapterInfo{}))
	f := NewFactory(r)

	cfg := domain.ProviderConfig{Name: "p1", Tool: "counted"}

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := f.Create(cfg, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, constructions)
}

func TestFactoryConstructorGetsCopies(t *testing.T) {
	var seen domain.ProviderConfig
	r := NewRegistry()
	ctor := func(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
		seen = cfg
		return &stubProvider{name: cfg.Name}, nil
	}
	require.NoError(t, r.Register("capture", ctor, ports.AdapterInfo{}))
	f := NewFactory(r)

	cfg := domain.ProviderConfig{
		Name:    "p1",
		Tool:    "capture",
		Options: map[string]any{"endpoint": "https://a.example"},
	}
	_, err := f.Create(cfg, nil)
	require.NoError(t, err)

	// Mutating the caller's options after creation must not be visible to
	// the constructed provider.
	cfg.Options["endpoint"] = "https://b.example"
	assert.Equal(t, "https://a.example", seen.Options["endpoint"])
}

func TestCacheKeyDistinguishesCredentials(t *testing.T) {
	cfg := domain.ProviderConfig{Name: "p", Tool: "echo"}

	keyA, err := cacheKey(cfg, domain.Credentials{"API_KEY": "a"})
	require.NoError(t, err)
	keyB, err := cacheKey(cfg, domain.Credentials{"API_KEY": "b"})
	require.NoError(t, err)
	keyA2, err := cacheKey(cfg, domain.Credentials{"API_KEY": "a"})
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB)
	assert.Equal(t, keyA, keyA2)
}

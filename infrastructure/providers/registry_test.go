package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// stubProvider is a minimal provider used to exercise registry and
// factory behavior without network access.
type stubProvider struct {
	name        string
	chunks      []domain.RagResult
	searchErr   error
	validateErr error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(ctx context.Context, query string, topK int) ([]domain.RagResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if topK < len(s.chunks) {
		return s.chunks[:topK], nil
	}
	return s.chunks, nil
}

func (s *stubProvider) ValidateConfig() error { return s.validateErr }

func stubConstructor(p ports.Provider) ports.ProviderConstructor {
	return func(cfg domain.ProviderConfig, creds domain.Credentials) (ports.Provider, error) {
		return p, nil
	}
}

func TestRegistryRegister(t *testing.T) {
	ctor := stubConstructor(&stubProvider{name: "stub"})

	tests := []struct {
		name    string
		regName string
		ctor    ports.ProviderConstructor
		preReg  []string
		wantErr error
	}{
		{
			name:    "registers new tool",
			regName: "vectordb",
			ctor:    ctor,
		},
		{
			name:    "rejects empty name",
			regName: "",
			ctor:    ctor,
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "rejects duplicate name",
			regName: "vectordb",
			ctor:    ctor,
			preReg:  []string{"vectordb"},
			wantErr: domain.ErrDuplicateProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, name := range tt.preReg {
				require.NoError(t, r.Register(name, ctor, ports.AdapterInfo{}))
			}

			err := r.Register(tt.regName, tt.ctor, ports.AdapterInfo{})
			if tt.wantErr != nil {
				require.Error(t, err)
				var regErr *domain.RegistryError
				assert.ErrorAs(t, err, &regErr)
				if errors.Is(tt.wantErr, domain.ErrDuplicateProvider) {
					assert.ErrorIs(t, err, domain.ErrDuplicateProvider)
				}
				return
			}

			require.NoError(t, err)
			got, ok := r.Get(tt.regName)
			assert.True(t, ok)
			assert.NotNil(t, got)
		})
	}
}

func TestRegistryRegisterNilConstructor(t *testing.T) {
	r := NewRegistry()
	err := r.Register("broken", nil, ports.AdapterInfo{})

	var regErr *domain.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "broken", regErr.Name)
}

func TestRegistryDuplicateKeepsOriginal(t *testing.T) {
	original := &stubProvider{name: "original"}
	replacement := &stubProvider{name: "replacement"}

	r := NewRegistry()
	require.NoError(t, r.Register("tool", stubConstructor(original), ports.AdapterInfo{}))
	require.ErrorIs(t,
		r.Register("tool", stubConstructor(replacement), ports.AdapterInfo{}),
		domain.ErrDuplicateProvider)

	ctor, ok := r.Get("tool")
	require.True(t, ok)
	p, err := ctor(domain.ProviderConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "original", p.Name())
}

func TestRegistryVersionMismatchWarns(t *testing.T) {
	r := NewRegistry()
	ctor := stubConstructor(&stubProvider{name: "stub"})

	require.NoError(t, r.Register("current", ctor, ports.AdapterInfo{APIVersion: "v1.3"}))
	assert.Empty(t, r.Warnings())

	require.NoError(t, r.Register("future", ctor, ports.AdapterInfo{APIVersion: "v2.0"}))
	warnings := r.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "future")
	assert.Contains(t, warnings[0], "v2.0")

	// Mismatched adapters still resolve.
	_, ok := r.Get("future")
	assert.True(t, ok)
}

func TestRegistryListAndDescribeSorted(t *testing.T) {
	r := NewRegistry()
	ctor := stubConstructor(&stubProvider{name: "stub"})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(name, ctor, ports.AdapterInfo{Name: name}))
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())

	infos := r.Describe()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "zeta", infos[2].Name)
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	assert.Equal(t,
		[]string{HTTPAPIAdapterName, OpenAIVectorAdapterName, RediSearchAdapterName},
		r.List())

	info, ok := r.Info(OpenAIVectorAdapterName)
	require.True(t, ok)
	assert.Contains(t, info.RequiredEnvVars, "OPENAI_API_KEY")

	// A second registration collides with the first.
	assert.ErrorIs(t, RegisterBuiltins(r), domain.ErrDuplicateProvider)
}

func TestParseMajorVersion(t *testing.T) {
	tests := []struct {
		version string
		want    int
		wantErr bool
	}{
		{version: "v1.2", want: 1},
		{version: "1", want: 1},
		{version: "2.0", want: 2},
		{version: "", wantErr: true},
		{version: "beta", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := parseMajorVersion(tt.version)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/rag-arena/internal/domain"
)

func TestNewRediSearchProviderRejections(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		creds   domain.Credentials
		wantErr string
	}{
		{
			name:    "missing addr",
			options: map[string]any{"index": "docs"},
			wantErr: "addr option is required",
		},
		{
			name:    "missing index",
			options: map[string]any{"addr": "localhost:6379"},
			wantErr: "index option is required",
		},
		{
			name: "missing password secret",
			options: map[string]any{
				"addr":         "localhost:6379",
				"index":        "docs",
				"password_env": "REDIS_PASSWORD",
			},
			wantErr: "REDIS_PASSWORD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRediSearchProvider(domain.ProviderConfig{
				Name:    "kw",
				Tool:    RediSearchAdapterName,
				Options: tt.options,
			}, tt.creds)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRediSearchSearchArgs(t *testing.T) {
	tests := []struct {
		name     string
		provider rediSearchProvider
		topK     int
		want     []string
	}{
		{
			name:     "text field only",
			provider: rediSearchProvider{index: "docs", textField: "text"},
			topK:     5,
			want: []string{
				"docs", "termination clause", "RETURN", "1", "text",
				"WITHSCORES", "LIMIT", "0", "5", "DIALECT", "2",
			},
		},
		{
			name:     "distinct id field is returned too",
			provider: rediSearchProvider{index: "docs", textField: "body", idField: "doc_id"},
			topK:     3,
			want: []string{
				"docs", "termination clause", "RETURN", "2", "body", "doc_id",
				"WITHSCORES", "LIMIT", "0", "3", "DIALECT", "2",
			},
		},
		{
			name:     "id field equal to text field is not duplicated",
			provider: rediSearchProvider{index: "docs", textField: "text", idField: "text"},
			topK:     1,
			want: []string{
				"docs", "termination clause", "RETURN", "1", "text",
				"WITHSCORES", "LIMIT", "0", "1", "DIALECT", "2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.provider.searchArgs("termination clause", tt.topK))
		})
	}
}

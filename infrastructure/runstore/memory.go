package runstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

var _ ports.RunStore = (*MemoryStore)(nil)

// MemoryStore keeps runs in process memory. It backs single-shot CLI
// invocations that do not configure persistence, and tests. Records
// round-trip through the same JSON encoding as the durable stores so
// the serialization contract is always exercised.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]string
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]string)}
}

// Save persists the run's encoded form under its key.
func (s *MemoryStore) Save(ctx context.Context, run *domain.Run) error {
	doc, err := domain.EncodeRun(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Key().String()] = doc
	return nil
}

// Load retrieves the run stored under the key.
func (s *MemoryStore) Load(ctx context.Context, key domain.RunKey) (*domain.Run, error) {
	s.mu.RLock()
	doc, ok := s.runs[key.String()]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("run %s: %w", key, ports.ErrRunNotFound)
	}
	return domain.DecodeRun(doc)
}

// List returns all stored keys, sorted by string form.
func (s *MemoryStore) List(ctx context.Context) ([]domain.RunKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]domain.RunKey, 0, len(s.runs))
	for raw := range s.runs {
		key, err := parseStoredKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// parseStoredKey recovers a run key from its slash-joined string form.
func parseStoredKey(raw string) (domain.RunKey, error) {
	return parseRedisKey(runKeyPrefix + raw)
}

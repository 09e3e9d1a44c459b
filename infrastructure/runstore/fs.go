// Package runstore provides persistence for run records. Two stores are
// available: a filesystem store writing one JSON document per run, and a
// Redis store for shared deployments.
package runstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

var _ ports.RunStore = (*FSStore)(nil)

// FSStore persists runs as JSON files under a root directory. File names
// derive from the run key's hash so arbitrary label and domain strings
// never produce unsafe paths.
// FSStore serializes writes; concurrent readers are safe.
type FSStore struct {
	root string
	mu   sync.RWMutex
}

// NewFSStore creates a filesystem store rooted at dir, creating it if
// needed.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("run store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run store directory: %w", err)
	}
	return &FSStore{root: dir}, nil
}

// Save writes the run's JSON document, replacing any previous record
// under the same key. The write goes through a temp file and rename so
// readers never observe a partial document.
func (s *FSStore) Save(ctx context.Context, run *domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := domain.EncodeRun(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pathFor(run.Key())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write run %s: %w", run.Key(), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persist run %s: %w", run.Key(), err)
	}
	return nil
}

// Load reads the run stored under the key.
func (s *FSStore) Load(ctx context.Context, key domain.RunKey) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s: %w", key, ports.ErrRunNotFound)
		}
		return nil, fmt.Errorf("read run %s: %w", key, err)
	}

	run, err := domain.DecodeRun(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode run %s: %w", key, err)
	}
	return run, nil
}

// List returns the keys of every persisted run, sorted by string form.
// Keys are read back from the documents themselves because file names
// are hashes.
func (s *FSStore) List(ctx context.Context) ([]domain.RunKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list run store: %w", err)
	}

	keys := make([]domain.RunKey, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read run file %s: %w", entry.Name(), err)
		}
		run, err := domain.DecodeRun(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode run file %s: %w", entry.Name(), err)
		}
		keys = append(keys, run.Key())
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// pathFor maps a run key to its file path.
func (s *FSStore) pathFor(key domain.RunKey) string {
	sum := sha256.Sum256([]byte(key.String()))
	return filepath.Join(s.root, hex.EncodeToString(sum[:16])+".json")
}

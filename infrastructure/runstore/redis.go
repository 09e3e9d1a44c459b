package runstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/rueidis"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// runKeyPrefix namespaces run records inside a shared Redis database.
const runKeyPrefix = "rag-arena:run:"

var _ ports.RunStore = (*RedisStore)(nil)

// RedisStore persists runs as JSON strings in Redis. It suits
// deployments where several operators share one benchmark history.
type RedisStore struct {
	client rueidis.Client
}

// RedisConfig carries the connection settings for the Redis store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Username and Password authenticate against Redis ACLs. Both are
	// optional.
	Username string
	Password string

	// DB selects the logical database.
	DB int
}

// NewRedisStore connects to Redis and returns a run store backed by it.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection.
func (s *RedisStore) Close() { s.client.Close() }

// Save writes the run's JSON document under its namespaced key.
func (s *RedisStore) Save(ctx context.Context, run *domain.Run) error {
	doc, err := domain.EncodeRun(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}

	cmd := s.client.B().Set().Key(redisKey(run.Key())).Value(doc).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("persist run %s: %w", run.Key(), err)
	}
	return nil
}

// Load reads the run stored under the key.
func (s *RedisStore) Load(ctx context.Context, key domain.RunKey) (*domain.Run, error) {
	cmd := s.client.B().Get().Key(redisKey(key)).Build()
	doc, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("run %s: %w", key, ports.ErrRunNotFound)
		}
		return nil, fmt.Errorf("read run %s: %w", key, err)
	}

	run, err := domain.DecodeRun(doc)
	if err != nil {
		return nil, fmt.Errorf("decode run %s: %w", key, err)
	}
	return run, nil
}

// List scans the run namespace and returns all stored keys, sorted by
// string form. SCAN is used instead of KEYS so a shared database is
// never blocked.
func (s *RedisStore) List(ctx context.Context) ([]domain.RunKey, error) {
	var keys []domain.RunKey
	cursor := uint64(0)
	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(runKeyPrefix + "*").Count(256).Build()
		entry, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("scan run store: %w", err)
		}
		for _, raw := range entry.Elements {
			key, err := parseRedisKey(raw)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// redisKey renders the namespaced storage key for a run.
func redisKey(key domain.RunKey) string {
	return runKeyPrefix + key.String()
}

// parseRedisKey recovers a run key from its storage form.
func parseRedisKey(raw string) (domain.RunKey, error) {
	rest, ok := strings.CutPrefix(raw, runKeyPrefix)
	if !ok {
		return domain.RunKey{}, fmt.Errorf("unexpected run key %q", raw)
	}
	parts := strings.SplitN(rest, "/", 4)
	if len(parts) != 4 {
		return domain.RunKey{}, fmt.Errorf("malformed run key %q", raw)
	}
	return domain.RunKey{
		Domain:   parts[0],
		Provider: parts[1],
		QuerySet: parts[2],
		Label:    parts[3],
	}, nil
}

package drop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileCacheStore keeps the cache as a JSON file at a deterministic path
// derived from (environment, name). This is the default store; killing the
// process after any Save loses at most the in-flight unit of work.
type FileCacheStore struct {
	// Dir is the directory holding cache files. Defaults to ".cache".
	Dir string

	// mu serialises Save calls so concurrent chunk completions never
	// interleave partial writes of the same file.
	mu sync.Mutex
}

func (s *FileCacheStore) path(env, name string) string {
	dir := s.Dir
	if dir == "" {
		dir = ".cache"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.json", env, name))
}

func (s *FileCacheStore) Load(ctx context.Context, env, name string) (*Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.path(env, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, path)
		}
		return nil, fmt.Errorf("load cache %s: %w", path, err)
	}

	cache := NewCache()
	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("parse cache %s: %w", path, err)
	}
	return cache, nil
}

func (s *FileCacheStore) Save(ctx context.Context, env, name string, cache *Cache) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(env, name)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("save cache %s: %w", path, err)
	}
	return nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/atomicfile"
)

// FileStore keeps entries in memory and persists them as one JSON object on
// Flush.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
	dirty   bool
}

var _ Store = (*FileStore)(nil)

// OpenFile loads the cache file at path. A missing file yields an empty
// cache. A partial or corrupt file is logged and also yields an empty cache;
// the next Flush replaces it.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		zap.L().Warn("cache file unreadable, starting with an empty cache",
			zap.String("path", path),
			zap.Error(err),
		)
		// Rewrite on the next flush even if nothing new is cached.
		s.dirty = true
		return s, nil
	}
	if entries != nil {
		s.entries = entries
	}
	zap.L().Debug("cache file loaded", zap.String("path", path), zap.Int("entries", len(s.entries)))
	return s, nil
}

func (s *FileStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *FileStore) Put(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	s.dirty = true
	return nil
}

func (s *FileStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	data, err := json.Marshal(s.entries)
	if err != nil {
		return eris.Wrap(err, "cache: encode file")
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return eris.Wrap(err, "cache: write file")
	}
	s.dirty = false
	return nil
}

func (s *FileStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *FileStore) Clear(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	if n > 0 {
		s.dirty = true
	}
	return n, nil
}

// Close does not flush; callers flush through Cache.Close.
func (s *FileStore) Close() error {
	return nil
}

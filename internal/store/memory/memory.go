package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"liquidityHouse/internal/store"
)

// Store keeps house state in memory and optionally mirrors it to a JSON
// snapshot file after every Apply.
type Store struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	path   string
	closed bool
}

type snapshot struct {
	Buckets   map[string]map[string]json.RawMessage `json:"buckets"`
	UpdatedAt string                                `json:"updated_at"`
}

func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

// Open loads the snapshot at path if it exists. Later Applies rewrite it.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	for bucket, entries := range snap.Buckets {
		m := make(map[string][]byte, len(entries))
		for k, v := range entries {
			m[k] = []byte(v)
		}
		s.data[bucket] = m
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, store.ErrClosed
	}
	v, ok := s.data[bucket][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Scan(_ context.Context, bucket, after string, limit int) ([]store.KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	entries := s.data[bucket]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		if k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]store.KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, store.KV{Key: k, Value: append([]byte(nil), entries[k]...)})
	}
	return out, nil
}

func (s *Store) Apply(_ context.Context, muts []store.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	next := s.data
	if s.path != "" {
		next = cloneData(s.data)
	}
	for _, m := range muts {
		bucket := next[m.Bucket]
		if m.Delete {
			delete(bucket, m.Key)
			continue
		}
		if bucket == nil {
			bucket = make(map[string][]byte)
			next[m.Bucket] = bucket
		}
		bucket[m.Key] = append([]byte(nil), m.Value...)
	}

	if s.path != "" {
		if err := writeSnapshot(s.path, next); err != nil {
			return err
		}
	}
	s.data = next
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneData(src map[string]map[string][]byte) map[string]map[string][]byte {
	out := make(map[string]map[string][]byte, len(src))
	for bucket, entries := range src {
		m := make(map[string][]byte, len(entries))
		for k, v := range entries {
			m[k] = v
		}
		out[bucket] = m
	}
	return out
}

func writeSnapshot(path string, data map[string]map[string][]byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	snap := snapshot{
		Buckets:   make(map[string]map[string]json.RawMessage, len(data)),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for bucket, entries := range data {
		m := make(map[string]json.RawMessage, len(entries))
		for k, v := range entries {
			m[k] = json.RawMessage(v)
		}
		snap.Buckets[bucket] = m
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"liquidityHouse/internal/store"
)

var ErrNotInitialized = errors.New("state: house not initialized")

// Txn buffers writes over a store.Reader. Reads observe the buffered writes.
// Nothing reaches the store until the caller applies Mutations.
type Txn struct {
	ctx    context.Context
	base   store.Reader
	writes map[string]map[string]*[]byte
}

func NewTxn(ctx context.Context, base store.Reader) *Txn {
	return &Txn{
		ctx:    ctx,
		base:   base,
		writes: make(map[string]map[string]*[]byte),
	}
}

// Dirty reports whether any write is buffered.
func (t *Txn) Dirty() bool {
	return len(t.writes) > 0
}

// Mutations returns buffered writes ordered by bucket then key.
func (t *Txn) Mutations() []store.Mutation {
	buckets := make([]string, 0, len(t.writes))
	for b := range t.writes {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	var out []store.Mutation
	for _, b := range buckets {
		keys := make([]string, 0, len(t.writes[b]))
		for k := range t.writes[b] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := t.writes[b][k]
			if v == nil {
				out = append(out, store.Mutation{Bucket: b, Key: k, Delete: true})
				continue
			}
			out = append(out, store.Mutation{Bucket: b, Key: k, Value: *v})
		}
	}
	return out
}

func (t *Txn) raw(bucket, key string) ([]byte, bool, error) {
	if w, ok := t.writes[bucket][key]; ok {
		if w == nil {
			return nil, false, nil
		}
		return *w, true, nil
	}
	return t.base.Get(t.ctx, bucket, key)
}

func (t *Txn) setRaw(bucket, key string, v *[]byte) {
	m := t.writes[bucket]
	if m == nil {
		m = make(map[string]*[]byte)
		t.writes[bucket] = m
	}
	m[key] = v
}

func (t *Txn) scanRaw(bucket, after string, limit int) ([]store.KV, error) {
	overlay := t.writes[bucket]
	baseLimit := limit
	if len(overlay) > 0 {
		baseLimit = 0
	}

	base, err := t.base.Scan(t.ctx, bucket, after, baseLimit)
	if err != nil {
		return nil, err
	}
	if len(overlay) == 0 {
		return base, nil
	}

	merged := make(map[string][]byte, len(base)+len(overlay))
	for _, kv := range base {
		merged[kv.Key] = kv.Value
	}
	for k, v := range overlay {
		if k <= after {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]store.KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, store.KV{Key: k, Value: merged[k]})
	}
	return out, nil
}

func get[T any](t *Txn, bucket, key string) (T, bool, error) {
	var out T
	raw, ok, err := t.raw(bucket, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return out, true, nil
}

func put(t *Txn, bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	t.setRaw(bucket, key, &raw)
	return nil
}

func del(t *Txn, bucket, key string) {
	t.setRaw(bucket, key, nil)
}

func scan[T any](t *Txn, bucket, after string, limit int) ([]T, error) {
	kvs, err := t.scanRaw(bucket, after, limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(kvs))
	for _, kv := range kvs {
		var v T
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", bucket, kv.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

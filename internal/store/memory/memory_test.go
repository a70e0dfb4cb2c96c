package memory

import (
	"context"
	"path/filepath"
	"testing"

	"liquidityHouse/internal/store"
)

func TestApplyGetScan(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Apply(ctx, []store.Mutation{
		{Bucket: store.BucketLedger, Key: "002", Value: []byte(`{"seq":2}`)},
		{Bucket: store.BucketLedger, Key: "001", Value: []byte(`{"seq":1}`)},
		{Bucket: store.BucketLedger, Key: "003", Value: []byte(`{"seq":3}`)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	v, ok, err := s.Get(ctx, store.BucketLedger, "002")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"seq":2}` {
		t.Fatalf("unexpected value: %s", v)
	}

	kvs, err := s.Scan(ctx, store.BucketLedger, "001", 1)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(kvs) != 1 || kvs[0].Key != "002" {
		t.Fatalf("unexpected scan result: %+v", kvs)
	}

	if err := s.Apply(ctx, []store.Mutation{{Bucket: store.BucketLedger, Key: "002", Delete: true}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, store.BucketLedger, "002"); ok {
		t.Fatalf("expected key to be deleted")
	}

	all, err := s.Scan(ctx, store.BucketLedger, "", 0)
	if err != nil {
		t.Fatalf("scan all: %v", err)
	}
	if len(all) != 2 || all[0].Key != "001" || all[1].Key != "003" {
		t.Fatalf("unexpected keys: %+v", all)
	}
}

func TestSnapshotReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "house.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Apply(ctx, []store.Mutation{
		{Bucket: store.BucketMeta, Key: "pool", Value: []byte(`{"liquidity":"10"}`)},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, err := reopened.Get(ctx, store.BucketMeta, "pool")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"liquidity":"10"}` {
		t.Fatalf("unexpected value: %s", v)
	}
}

func TestClosed(t *testing.T) {
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := s.Get(context.Background(), store.BucketMeta, "pool"); err != store.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

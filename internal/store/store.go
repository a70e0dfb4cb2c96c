package store

import (
	"context"
	"errors"
)

// Buckets partition the keyspace.
const (
	BucketMeta     = "meta"
	BucketAccounts = "accounts"
	BucketLedger   = "ledger"
	BucketUsage    = "usage"
	BucketClients  = "clients"
	BucketQueue    = "queue"
	BucketEvents   = "events"
	BucketTaxes    = "taxes"
	BucketStreams  = "streams"
)

var ErrClosed = errors.New("store: closed")

// KV is a single key/value pair returned from Scan.
type KV struct {
	Key   string
	Value []byte
}

// Mutation is a put, or a delete when Delete is set.
type Mutation struct {
	Bucket string
	Key    string
	Value  []byte
	Delete bool
}

// Reader provides point and ordered range reads.
type Reader interface {
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	// Scan returns pairs with key > after in ascending key order. A limit of
	// zero means no limit.
	Scan(ctx context.Context, bucket, after string, limit int) ([]KV, error)
}

// Store persists house state. Apply must be all-or-nothing.
type Store interface {
	Reader
	Apply(ctx context.Context, muts []Mutation) error
	Close() error
}

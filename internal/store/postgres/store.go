package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"liquidityHouse/internal/store"
)

// Schema creates the key/value table used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS house_state (
	bucket     TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bucket, key)
);
`

// Options controls connection retries.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Store provides Postgres persistence for house state.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func Open(ctx context.Context, dsn string, opts Options, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	err = store.WithRetry(ctx, opts.MaxRetries, opts.RetryBackoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("postgres ping failed", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var value []byte
	row := s.pool.QueryRow(ctx, `SELECT value FROM house_state WHERE bucket=$1 AND key=$2`, bucket, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Scan(ctx context.Context, bucket, after string, limit int) ([]store.KV, error) {
	var lim *int64
	if limit > 0 {
		l := int64(limit)
		lim = &l
	}

	rows, err := s.pool.Query(ctx, `
		SELECT key, value FROM house_state
		WHERE bucket=$1 AND key > $2
		ORDER BY key
		LIMIT $3
	`, bucket, after, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.KV
	for rows.Next() {
		var kv store.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// Apply writes all mutations in a single transaction.
func (s *Store) Apply(ctx context.Context, muts []store.Mutation) error {
	if len(muts) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range muts {
		if m.Delete {
			batch.Queue(`DELETE FROM house_state WHERE bucket=$1 AND key=$2`, m.Bucket, m.Key)
			continue
		}
		batch.Queue(`
			INSERT INTO house_state (bucket, key, value, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (bucket, key)
			DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = now()
		`, m.Bucket, m.Key, m.Value)
	}

	br := tx.SendBatch(ctx, batch)
	for _, m := range muts {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("apply %s/%s: %w", m.Bucket, m.Key, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

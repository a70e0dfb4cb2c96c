package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"liquidityHouse/internal/store"
)

// Schema creates the key/value table used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS house_state (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (bucket, key)
);
`

// Store persists house state in an embedded SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Debug("sqlite store open", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var value []byte
	row := s.db.QueryRowContext(ctx, `SELECT value FROM house_state WHERE bucket = ? AND key = ?`, bucket, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Scan(ctx context.Context, bucket, after string, limit int) ([]store.KV, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM house_state
		WHERE bucket = ? AND key > ?
		ORDER BY key
		LIMIT ?
	`, bucket, after, limit)
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

func (s *Store) Apply(ctx context.Context, muts []store.Mutation) error {
	if len(muts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range muts {
		if m.Delete {
			_, err = tx.ExecContext(ctx, `DELETE FROM house_state WHERE bucket = ? AND key = ?`, m.Bucket, m.Key)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO house_state (bucket, key, value, updated_at)
				VALUES (?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT (bucket, key)
				DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, m.Bucket, m.Key, m.Value)
		}
		if err != nil {
			return fmt.Errorf("apply %s/%s: %w", m.Bucket, m.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

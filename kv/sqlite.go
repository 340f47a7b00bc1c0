package kv

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// DefaultQueryTimeout is the per-operation timeout for I/O-backed stores.
// Prevents indefinite hangs on slow or unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

type sqliteStore struct {
	db      *sql.DB
	timeout time.Duration
}

var _ Store = (*sqliteStore)(nil)

// NewSQLite returns a Store backed by SQLite at dbPath. If dbPath is empty
// or ":memory:", an in-memory database is used.
func NewSQLite(ctx context.Context, dbPath string) (Store, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "kv: opening sqlite database")
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "kv: enabling WAL mode")
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "kv: creating kv table")
	}

	return &sqliteStore{db: db, timeout: DefaultQueryTimeout}, nil
}

func (s *sqliteStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	var value []byte
	err := s.db.QueryRowContext(qctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key string, value []byte) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(qctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(qctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *sqliteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	query, args := `SELECT key FROM kv`, []any{}
	if prefix != "" {
		query, args = `SELECT key FROM kv WHERE key >= ? AND key < ?`, []any{prefix, prefix + "\xff"}
	}
	rows, err := s.db.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// Package kv provides a small synchronous key-value storage capability used
// as the durable tier behind caches and experiment assignment records.
//
// Three implementations are provided:
//
//   - [NewMemory]: in-process map guarded by a mutex, optionally bounded by
//     a byte quota. Used in tests and as a stand-in for environments without
//     durable storage.
//   - [NewSQLite]: single-file SQLite database using [modernc.org/sqlite]
//     (pure Go, no CGO). WAL mode is enabled. Survives process restarts.
//   - [NewRedis]: Redis-backed store using [github.com/redis/go-redis/v9].
//     The caller owns the redis.Client lifecycle; Close is a no-op.
//
// Not-found is reported as a false bool, never an error. Writes can fail
// with [ErrQuotaExceeded] when the backing store is out of space; callers
// that treat writes as best-effort should check [IsQuotaExceeded] and
// degrade rather than propagate.
package kv

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrQuotaExceeded is returned by Set when the backing store has no room
// left for the value. Callers may reclaim space (e.g. purge expired
// entries) and retry.
var ErrQuotaExceeded = errors.New("kv: storage quota exceeded")

// IsQuotaExceeded reports whether err indicates an exhausted storage quota.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// Store is a synchronous key-value store. All operations are expected to
// complete near-instantly (in-memory or local-disk-backed); the context
// bounds I/O-backed implementations.
type Store interface {
	// Get returns the value for key. The bool reports presence.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases resources held by the store.
	Close() error
}

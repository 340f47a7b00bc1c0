package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Put encodes value as msgpack and stores it in the named cache. Encoding
// failures are returned; they indicate a caller data problem, not a cache
// failure.
func Put[T any](ctx context.Context, m *Manager, cacheName, key string, value T, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "cache: encoding value for %s/%s", cacheName, key)
	}
	m.Set(ctx, cacheName, key, data, ttl)
	return nil
}

// Fetch returns a typed value from the named cache. A decode failure is
// reported as an error; absence is a false bool.
func Fetch[T any](ctx context.Context, m *Manager, cacheName, key string) (T, bool, error) {
	var zero T
	data, found := m.Get(ctx, cacheName, key)
	if !found {
		return zero, false, nil
	}
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return zero, false, errors.Wrapf(err, "cache: decoding value for %s/%s", cacheName, key)
	}
	return out, true, nil
}

// Remember is the typed cache-aside helper: it returns the cached value
// for key or invokes fn once to compute and store it. Concurrent misses
// for the same key share a single fn invocation.
func Remember[T any](ctx context.Context, m *Manager, cacheName, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, errors.New("cache: remember requires a callback")
	}
	data, err := m.RememberBytes(ctx, cacheName, key, ttl, func(ctx context.Context) ([]byte, error) {
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(value)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return zero, errors.Wrapf(err, "cache: decoding remembered value for %s/%s", cacheName, key)
	}
	return out, nil
}

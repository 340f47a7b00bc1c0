package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis. An optional prefix namespaces
// all keys on the shared instance. The caller owns the redis.Client
// lifecycle; Close is a no-op on the client.
func NewRedis(client *redis.Client, prefix string) Store {
	return &redisStore{
		client:  client,
		prefix:  prefix,
		timeout: DefaultQueryTimeout,
	}
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *redisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Set(qctx, s.key(key), value, 0).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Del(qctx, s.key(key)).Err()
}

func (s *redisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	var keys []string
	iter := s.client.Scan(qctx, 0, s.key(prefix)+"*", 0).Iterator()
	for iter.Next(qctx) {
		key := iter.Val()
		if s.prefix != "" {
			key = key[len(s.prefix)+1:]
		}
		keys = append(keys, key)
	}
	return keys, iter.Err()
}

// Close is a no-op; the caller owns the redis.Client lifecycle.
func (s *redisStore) Close() error {
	return nil
}

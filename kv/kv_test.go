package kv

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	_, found, err := s.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, s.Set(ctx, "a", []byte("1")))
	val, found, err := s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), val)

	assert.NoError(t, s.Delete(ctx, "a"))
	_, found, err = s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, "a"))
}

func TestMemoryKeysPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "cache:products:1", []byte("x")))
	assert.NoError(t, s.Set(ctx, "cache:products:2", []byte("y")))
	assert.NoError(t, s.Set(ctx, "cache:search:q", []byte("z")))

	keys, err := s.Keys(ctx, "cache:products:")
	assert.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"cache:products:1", "cache:products:2"}, keys)

	all, err := s.Keys(ctx, "")
	assert.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryQuota(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(WithQuota(10))
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "a", []byte("12345")))
	err := s.Set(ctx, "b", []byte("123456789"))
	assert.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))

	// Replacing an existing value frees its old bytes first.
	assert.NoError(t, s.Set(ctx, "a", []byte("1234567890")))

	// Deleting reclaims quota.
	assert.NoError(t, s.Delete(ctx, "a"))
	assert.NoError(t, s.Set(ctx, "b", []byte("123456789")))
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "a", []byte("abc")))
	val, _, err := s.Get(ctx, "a")
	assert.NoError(t, err)
	val[0] = 'z'

	val2, _, err := s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.Equal(t, []byte("abc"), val2)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, s.Set(ctx, "a", []byte("hello")))
	val, found, err := s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)

	// Upsert replaces.
	assert.NoError(t, s.Set(ctx, "a", []byte("world")))
	val, found, err = s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("world"), val)

	assert.NoError(t, s.Delete(ctx, "a"))
	_, found, err = s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteKeysPrefix(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "pg:a", []byte("1")))
	assert.NoError(t, s.Set(ctx, "pg:b", []byte("2")))
	assert.NoError(t, s.Set(ctx, "other:c", []byte("3")))

	keys, err := s.Keys(ctx, "pg:")
	assert.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"pg:a", "pg:b"}, keys)
}

func TestSQLiteFileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	assert.NoError(t, s.Set(ctx, "persisted", []byte("yes")))
	assert.NoError(t, s.Close())

	// Reopen and verify the value survived.
	s2, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s2.Close()
	val, found, err := s2.Get(ctx, "persisted")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("yes"), val)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	s := NewRedis(client, "kvtest")
	defer s.Close()

	assert.NoError(t, s.Set(ctx, "a", []byte("1")))
	val, found, err := s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), val)

	keys, err := s.Keys(ctx, "")
	assert.NoError(t, err)
	assert.Contains(t, keys, "a")

	assert.NoError(t, s.Delete(ctx, "a"))
	_, found, err = s.Get(ctx, "a")
	assert.NoError(t, err)
	assert.False(t, found)
}

package kv

import (
	"context"
	"strings"
	"sync"
)

type memoryStore struct {
	mutex sync.Mutex
	data  map[string][]byte
	quota int
	used  int
}

var _ Store = (*memoryStore)(nil)

// MemoryOption configures the in-memory store.
type MemoryOption func(*memoryStore)

// WithQuota bounds the total number of value bytes the store will hold.
// Writes that would exceed the quota fail with ErrQuotaExceeded, mirroring
// the behavior of quota-limited host storage.
func WithQuota(bytes int) MemoryOption {
	return func(s *memoryStore) { s.quota = bytes }
}

// NewMemory returns an in-process Store backed by a map.
func NewMemory(opts ...MemoryOption) Store {
	s := &memoryStore{data: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	val, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	next := s.used - len(s.data[key]) + len(value)
	if s.quota > 0 && next > s.quota {
		return ErrQuotaExceeded
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	s.used = next
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if val, ok := s.data[key]; ok {
		s.used -= len(val)
		delete(s.data, key)
	}
	return nil
}

func (s *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *memoryStore) Close() error {
	return nil
}

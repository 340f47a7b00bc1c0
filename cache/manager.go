package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pgclosets/go-common/kv"
	"github.com/pgclosets/go-common/logger"
)

// DefaultConfigs returns the named cache table used by the storefront:
// API responses, product and collection data, images, user data, search
// results, and short-lived analytics payloads.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		"api":         {TTL: 5 * time.Minute, MaxSize: 100, Strategy: StrategyLRU},
		"products":    {TTL: 15 * time.Minute, MaxSize: 200, Strategy: StrategyLRU, Persistent: true},
		"collections": {TTL: 30 * time.Minute, MaxSize: 50, Strategy: StrategyLRU, Persistent: true},
		"images":      {TTL: time.Hour, MaxSize: 1000, Strategy: StrategyLRU},
		"userdata":    {TTL: 10 * time.Minute, MaxSize: 20, Strategy: StrategyLFU, Persistent: true},
		"search":      {TTL: 5 * time.Minute, MaxSize: 50, Strategy: StrategyLRU},
		"analytics":   {TTL: time.Minute, MaxSize: 10, Strategy: StrategyFIFO},
	}
}

type managerOptions struct {
	configs   map[string]Config
	store     kv.Store
	log       logger.Logger
	keyPrefix string
	tierOpts  []Option
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

// WithConfigs replaces the default named cache table.
func WithConfigs(configs map[string]Config) ManagerOption {
	return func(o *managerOptions) { o.configs = configs }
}

// WithStore supplies the durable tier. Caches whose config sets Persistent
// are mirrored into it. Without a store every cache is memory-only.
func WithStore(store kv.Store) ManagerOption {
	return func(o *managerOptions) { o.store = store }
}

// WithLogger sets the logger for degraded-operation warnings.
func WithLogger(log logger.Logger) ManagerOption {
	return func(o *managerOptions) { o.log = log }
}

// WithKeyPrefix sets the base prefix for durable storage keys. Each cache
// stores entries under "<base>_<name>:<key>". Defaults to "pg_cache".
func WithKeyPrefix(prefix string) ManagerOption {
	return func(o *managerOptions) { o.keyPrefix = prefix }
}

// WithTierOptions passes tier construction options (e.g. sweep interval)
// to every cache the manager builds.
func WithTierOptions(opts ...Option) ManagerOption {
	return func(o *managerOptions) { o.tierOpts = opts }
}

// Manager holds a registry of named caches. It is constructed once at
// application start and injected into consumers; all methods are safe for
// concurrent use. Operations on unconfigured cache names are silent
// no-ops and no method returns an error: environment failures are logged
// and degrade to miss behavior.
type Manager struct {
	caches map[string]Cache
	log    logger.Logger
	group  singleflight.Group
}

// NewManager builds the named caches from the configured table.
func NewManager(ctx context.Context, opts ...ManagerOption) *Manager {
	o := managerOptions{
		configs:   DefaultConfigs(),
		log:       logger.NewConsoleLogger(),
		keyPrefix: "pg_cache",
	}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Manager{
		caches: make(map[string]Cache, len(o.configs)),
		log:    o.log.WithPrefix("cache"),
	}
	for name, cfg := range o.configs {
		memory := NewMemory(ctx, cfg, o.tierOpts...)
		if cfg.Persistent && o.store != nil {
			persistent := NewPersistent(ctx, o.store, o.keyPrefix+"_"+name, cfg, m.log, o.tierOpts...)
			m.caches[name] = NewTiered(memory, persistent)
		} else {
			m.caches[name] = memory
		}
	}
	return m
}

// Set stores data in the named cache. If ttl <= 0 the cache's configured
// TTL applies. Unknown cache names are no-ops.
func (m *Manager) Set(ctx context.Context, cacheName, key string, data []byte, ttl time.Duration) {
	cache, ok := m.caches[cacheName]
	if !ok {
		m.log.Trace("set on unconfigured cache %q ignored", cacheName)
		return
	}
	if err := cache.Set(ctx, key, data, ttl); err != nil {
		m.log.Warn("set %s/%s failed: %v", cacheName, key, err)
	}
}

// Get returns the cached value for key in the named cache. Unknown cache
// names and storage failures report a miss.
func (m *Manager) Get(ctx context.Context, cacheName, key string) ([]byte, bool) {
	cache, ok := m.caches[cacheName]
	if !ok {
		return nil, false
	}
	data, found, err := cache.Get(ctx, key)
	if err != nil {
		m.log.Warn("get %s/%s failed: %v", cacheName, key, err)
		return nil, false
	}
	return data, found
}

// Has reports whether key is present and unexpired in the named cache.
func (m *Manager) Has(ctx context.Context, cacheName, key string) bool {
	_, found := m.Get(ctx, cacheName, key)
	return found
}

// Delete removes key from the named cache and reports whether it was present.
func (m *Manager) Delete(ctx context.Context, cacheName, key string) bool {
	cache, ok := m.caches[cacheName]
	if !ok {
		return false
	}
	found, err := cache.Delete(ctx, key)
	if err != nil {
		m.log.Warn("delete %s/%s failed: %v", cacheName, key, err)
		return false
	}
	return found
}

// Clear empties the given caches, or every cache when none are named.
func (m *Manager) Clear(ctx context.Context, cacheNames ...string) {
	if len(cacheNames) == 0 {
		for name := range m.caches {
			cacheNames = append(cacheNames, name)
		}
	}
	for _, name := range cacheNames {
		if cache, ok := m.caches[name]; ok {
			if err := cache.Clear(ctx); err != nil {
				m.log.Warn("clear %s failed: %v", name, err)
			}
		}
	}
}

// Stats returns a snapshot for one named cache. The bool reports whether
// the cache exists.
func (m *Manager) Stats(ctx context.Context, cacheName string) (Stats, bool) {
	cache, ok := m.caches[cacheName]
	if !ok {
		return Stats{}, false
	}
	stats, err := cache.Stats(ctx)
	if err != nil {
		m.log.Warn("stats %s failed: %v", cacheName, err)
		return Stats{}, false
	}
	return stats, true
}

// AllStats returns snapshots for every configured cache.
func (m *Manager) AllStats(ctx context.Context) map[string]Stats {
	out := make(map[string]Stats, len(m.caches))
	for name := range m.caches {
		if stats, ok := m.Stats(ctx, name); ok {
			out[name] = stats
		}
	}
	return out
}

// RememberBytes returns the cached value for key or computes and stores it
// when missing. Concurrent misses for the same (cache, key) pair are
// deduped: fn runs once and every waiter receives its result. Errors from
// fn propagate to all waiters; cache write failures do not.
func (m *Manager) RememberBytes(ctx context.Context, cacheName, key string, ttl time.Duration, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if data, found := m.Get(ctx, cacheName, key); found {
		return data, nil
	}
	result, err, _ := m.group.Do(cacheName+"\x00"+key, func() (interface{}, error) {
		if data, found := m.Get(ctx, cacheName, key); found {
			return data, nil
		}
		data, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		m.Set(ctx, cacheName, key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Close shuts down every cache. The manager must not be used afterwards.
func (m *Manager) Close() error {
	var firstErr error
	for _, cache := range m.caches {
		if err := cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Named returns a handle bound to one cache name. Handles for
// unconfigured names are valid and behave as no-ops.
func (m *Manager) Named(name string) *Scoped {
	return &Scoped{manager: m, name: name}
}

// Products returns the product data cache handle.
func (m *Manager) Products() *Scoped { return m.Named("products") }

// API returns the API response cache handle.
func (m *Manager) API() *Scoped { return m.Named("api") }

// Images returns the image cache handle.
func (m *Manager) Images() *Scoped { return m.Named("images") }

// Search returns the search result cache handle.
func (m *Manager) Search() *Scoped { return m.Named("search") }

// UserData returns the user data cache handle.
func (m *Manager) UserData() *Scoped { return m.Named("userdata") }

// Scoped is a Manager handle bound to a single named cache.
type Scoped struct {
	manager *Manager
	name    string
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	s.manager.Set(ctx, s.name, key, data, ttl)
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool) {
	return s.manager.Get(ctx, s.name, key)
}

func (s *Scoped) Has(ctx context.Context, key string) bool {
	return s.manager.Has(ctx, s.name, key)
}

func (s *Scoped) Delete(ctx context.Context, key string) bool {
	return s.manager.Delete(ctx, s.name, key)
}

func (s *Scoped) Clear(ctx context.Context) {
	s.manager.Clear(ctx, s.name)
}

func (s *Scoped) Stats(ctx context.Context) (Stats, bool) {
	return s.manager.Stats(ctx, s.name)
}

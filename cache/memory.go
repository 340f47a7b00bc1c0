package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data         []byte
	timestamp    time.Time
	expiresAt    time.Time
	accessCount  int
	lastAccessed time.Time
	seq          uint64
}

// MemoryCache is the in-process tier: a bounded map with lazy expiry and
// configurable eviction.
type MemoryCache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	mutex     sync.Mutex
	entries   map[string]*memoryEntry
	cfg       Config
	nextSeq   uint64
	hits      uint64
	misses    uint64
	waitGroup sync.WaitGroup
	once      sync.Once
}

var _ Cache = (*MemoryCache)(nil)

// NewMemory returns a bounded in-memory cache. The parent context bounds
// the background sweep goroutine; Close (or cancelling the parent) stops it.
func NewMemory(parent context.Context, cfg Config, opts ...Option) *MemoryCache {
	o := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &MemoryCache{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*memoryEntry),
		cfg:     cfg.withDefaults(),
	}
	if o.sweepInterval > 0 {
		c.waitGroup.Add(1)
		go c.run(o.sweepInterval)
	}
	return c
}

// Config returns the immutable configuration of this cache.
func (c *MemoryCache) Config() Config {
	return c.cfg
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := time.Now()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false, nil
	}
	entry.accessCount++
	entry.lastAccessed = now
	c.hits++
	return entry.data, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	now := time.Now()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.removeExpiredLocked(now)
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxSize {
		c.evictLocked()
	}
	c.nextSeq++
	c.entries[key] = &memoryEntry{
		data:         data,
		timestamp:    now,
		expiresAt:    now.Add(ttl),
		accessCount:  1,
		lastAccessed: now,
		seq:          c.nextSeq,
	}
	return nil
}

func (c *MemoryCache) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

func (c *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return ok, nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]*memoryEntry)
	return nil
}

func (c *MemoryCache) Stats(_ context.Context) (Stats, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var bytes int
	for key, entry := range c.entries {
		// Rough accounting: key, payload, and fixed per-entry overhead.
		bytes += len(key) + len(entry.data) + 64
	}
	var hitRate float64
	if lookups := c.hits + c.misses; lookups > 0 {
		hitRate = float64(c.hits) / float64(lookups)
	}
	return Stats{
		Size:        len(c.entries),
		MaxSize:     c.cfg.MaxSize,
		HitRate:     hitRate,
		MemoryBytes: bytes,
	}, nil
}

func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *MemoryCache) removeExpiredLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictLocked removes one victim per the configured strategy. Ties are
// broken by insertion order so eviction is deterministic.
func (c *MemoryCache) evictLocked() {
	var victim string
	var found bool
	better := func(candidate, current *memoryEntry) bool {
		switch c.cfg.Strategy {
		case StrategyFIFO:
			if !candidate.timestamp.Equal(current.timestamp) {
				return candidate.timestamp.Before(current.timestamp)
			}
		case StrategyLFU:
			if candidate.accessCount != current.accessCount {
				return candidate.accessCount < current.accessCount
			}
		default: // StrategyLRU
			if !candidate.lastAccessed.Equal(current.lastAccessed) {
				return candidate.lastAccessed.Before(current.lastAccessed)
			}
		}
		return candidate.seq < current.seq
	}
	for key, entry := range c.entries {
		if !found || better(entry, c.entries[victim]) {
			victim = key
			found = true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

func (c *MemoryCache) run(interval time.Duration) {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mutex.Lock()
			c.removeExpiredLocked(time.Now())
			c.mutex.Unlock()
		}
	}
}

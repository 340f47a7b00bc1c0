package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pgclosets/go-common/kv"
	"github.com/pgclosets/go-common/logger"
)

// persistedEntry is the wire form of a cache entry in the durable tier.
type persistedEntry struct {
	Data         []byte `msgpack:"data"`
	Timestamp    int64  `msgpack:"ts"`
	ExpiresAt    int64  `msgpack:"exp"`
	AccessCount  int    `msgpack:"hits"`
	LastAccessed int64  `msgpack:"last"`
}

func (e *persistedEntry) expired(now time.Time) bool {
	return now.UnixMilli() > e.ExpiresAt
}

// PersistentCache mirrors entries into a kv.Store so they survive process
// restarts. Writes are best-effort: a storage failure purges expired
// entries, logs a warning, and never fails the caller.
type PersistentCache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	store     kv.Store
	prefix    string
	cfg       Config
	log       logger.Logger
	mutex     sync.Mutex
	hits      uint64
	misses    uint64
	waitGroup sync.WaitGroup
	once      sync.Once
}

var _ Cache = (*PersistentCache)(nil)

// NewPersistent returns a durable cache tier storing entries under
// "<prefix>:<key>" in store. The store lifecycle belongs to the caller.
func NewPersistent(parent context.Context, store kv.Store, prefix string, cfg Config, log logger.Logger, opts ...Option) *PersistentCache {
	o := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &PersistentCache{
		ctx:    ctx,
		cancel: cancel,
		store:  store,
		prefix: prefix,
		cfg:    cfg.withDefaults(),
		log:    log.With(map[string]interface{}{"cache": prefix}),
	}
	if o.sweepInterval > 0 {
		c.waitGroup.Add(1)
		go c.run(o.sweepInterval)
	}
	return c
}

func (c *PersistentCache) storageKey(key string) string {
	return c.prefix + ":" + key
}

// lookup fetches and validates the persisted entry for key. Malformed and
// expired entries are deleted and reported as absent.
func (c *PersistentCache) lookup(ctx context.Context, key string) (*persistedEntry, bool) {
	raw, found, err := c.store.Get(ctx, c.storageKey(key))
	if err != nil {
		c.log.Warn("persistent tier read failed for %s: %v", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var entry persistedEntry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		c.log.Warn("dropping malformed persisted entry for %s: %v", key, err)
		_ = c.store.Delete(ctx, c.storageKey(key))
		return nil, false
	}
	if entry.expired(time.Now()) {
		_ = c.store.Delete(ctx, c.storageKey(key))
		return nil, false
	}
	return &entry, true
}

func (c *PersistentCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, found := c.lookup(ctx, key)
	if !found {
		c.countLookup(false)
		return nil, false, nil
	}
	now := time.Now()
	entry.AccessCount++
	entry.LastAccessed = now.UnixMilli()
	if raw, err := msgpack.Marshal(entry); err == nil {
		_ = c.store.Set(ctx, c.storageKey(key), raw)
	}
	c.countLookup(true)
	return entry.Data, true, nil
}

func (c *PersistentCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	now := time.Now()
	entry := persistedEntry{
		Data:         data,
		Timestamp:    now.UnixMilli(),
		ExpiresAt:    now.Add(ttl).UnixMilli(),
		AccessCount:  1,
		LastAccessed: now.UnixMilli(),
	}
	raw, err := msgpack.Marshal(&entry)
	if err != nil {
		c.log.Warn("failed to encode entry for %s: %v", key, err)
		return nil
	}
	if err := c.store.Set(ctx, c.storageKey(key), raw); err != nil {
		c.log.Warn("persistent tier write failed for %s: %v", key, err)
		if kv.IsQuotaExceeded(err) {
			// Reclaim space from expired entries and retry once.
			if purged, _ := c.Sweep(ctx); purged > 0 {
				if err := c.store.Set(ctx, c.storageKey(key), raw); err != nil {
					c.log.Warn("persistent tier write retry failed for %s: %v", key, err)
				}
			}
		}
	}
	return nil
}

func (c *PersistentCache) Has(ctx context.Context, key string) (bool, error) {
	_, found := c.lookup(ctx, key)
	return found, nil
}

func (c *PersistentCache) Delete(ctx context.Context, key string) (bool, error) {
	_, found, err := c.store.Get(ctx, c.storageKey(key))
	if err != nil {
		c.log.Warn("persistent tier read failed for %s: %v", key, err)
		return false, nil
	}
	if err := c.store.Delete(ctx, c.storageKey(key)); err != nil {
		c.log.Warn("persistent tier delete failed for %s: %v", key, err)
		return false, nil
	}
	return found, nil
}

func (c *PersistentCache) Clear(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, c.prefix+":")
	if err != nil {
		c.log.Warn("persistent tier scan failed: %v", err)
		return nil
	}
	for _, key := range keys {
		_ = c.store.Delete(ctx, key)
	}
	return nil
}

func (c *PersistentCache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.store.Keys(ctx, c.prefix+":")
	if err != nil {
		c.log.Warn("persistent tier scan failed: %v", err)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var hitRate float64
	if lookups := c.hits + c.misses; lookups > 0 {
		hitRate = float64(c.hits) / float64(lookups)
	}
	return Stats{
		Size:    len(keys),
		MaxSize: c.cfg.MaxSize,
		HitRate: hitRate,
	}, nil
}

func (c *PersistentCache) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

// Sweep scans the durable tier and removes expired and malformed entries,
// returning the number removed. It is also run periodically in the
// background unless WithSweepInterval(0) disabled it.
func (c *PersistentCache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx, c.prefix+":")
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var purged int
	for _, key := range keys {
		raw, found, err := c.store.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		var entry persistedEntry
		if err := msgpack.Unmarshal(raw, &entry); err != nil || entry.expired(now) {
			if c.store.Delete(ctx, key) == nil {
				purged++
			}
		}
	}
	return purged, nil
}

func (c *PersistentCache) countLookup(hit bool) {
	c.mutex.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mutex.Unlock()
}

func (c *PersistentCache) run(interval time.Duration) {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(c.ctx); err != nil {
				c.log.Warn("background sweep failed: %v", err)
			}
		}
	}
}

package cache

import (
	"context"
	"time"
)

// TieredCache chains a memory tier in front of a persistent tier. Reads
// check memory first and promote persistent-tier hits back into memory
// with their remaining TTL. Writes go through to both tiers.
type TieredCache struct {
	memory     *MemoryCache
	persistent *PersistentCache
}

var _ Cache = (*TieredCache)(nil)

// NewTiered combines a memory cache and a persistent cache into one.
func NewTiered(memory *MemoryCache, persistent *PersistentCache) *TieredCache {
	return &TieredCache{memory: memory, persistent: persistent}
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, found, err := c.memory.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return data, true, nil
	}
	entry, found := c.persistent.lookup(ctx, key)
	if !found {
		c.persistent.countLookup(false)
		return nil, false, nil
	}
	c.persistent.countLookup(true)
	// Promote with the remaining lifetime so the durable expiry still holds.
	remaining := time.Until(time.UnixMilli(entry.ExpiresAt))
	if remaining > 0 {
		_ = c.memory.Set(ctx, key, entry.Data, remaining)
	}
	return entry.Data, true, nil
}

func (c *TieredCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.memory.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	return c.persistent.Set(ctx, key, data, ttl)
}

func (c *TieredCache) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

func (c *TieredCache) Delete(ctx context.Context, key string) (bool, error) {
	memFound, err := c.memory.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	persistFound, err := c.persistent.Delete(ctx, key)
	if err != nil {
		return memFound, err
	}
	return memFound || persistFound, nil
}

func (c *TieredCache) Clear(ctx context.Context) error {
	if err := c.memory.Clear(ctx); err != nil {
		return err
	}
	return c.persistent.Clear(ctx)
}

// Stats reports the memory tier snapshot, which is the tier bounded by
// Config.MaxSize.
func (c *TieredCache) Stats(ctx context.Context) (Stats, error) {
	return c.memory.Stats(ctx)
}

func (c *TieredCache) Close() error {
	memErr := c.memory.Close()
	if err := c.persistent.Close(); err != nil {
		return err
	}
	return memErr
}

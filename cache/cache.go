package cache

import (
	"context"
	"time"
)

// Strategy selects the eviction policy applied when a cache is at capacity.
type Strategy string

const (
	// StrategyLRU evicts the entry whose last access is oldest.
	StrategyLRU Strategy = "lru"
	// StrategyFIFO evicts the entry whose creation is oldest, ignoring access history.
	StrategyFIFO Strategy = "fifo"
	// StrategyLFU evicts the entry with the lowest access count.
	StrategyLFU Strategy = "lfu"
)

// DefaultTTL is applied when Set is called with ttl <= 0 and the cache
// config does not override it.
const DefaultTTL = 5 * time.Minute

// DefaultMaxSize bounds caches whose config does not set MaxSize.
const DefaultMaxSize = 100

// Config describes one named cache. It is immutable once the cache is
// constructed.
type Config struct {
	// TTL is the default time-to-live for entries.
	TTL time.Duration `yaml:"ttl"`
	// MaxSize is the maximum number of entries held in the memory tier.
	MaxSize int `yaml:"max_size"`
	// Strategy is the eviction policy used when at capacity.
	Strategy Strategy `yaml:"strategy"`
	// Persistent mirrors the cache into the durable tier when the manager
	// has a kv.Store configured.
	Persistent bool `yaml:"persistent"`
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	switch c.Strategy {
	case StrategyLRU, StrategyFIFO, StrategyLFU:
	default:
		c.Strategy = StrategyLRU
	}
	return c
}

// Stats is a point-in-time snapshot of one cache.
type Stats struct {
	// Size is the current number of entries in the memory tier.
	Size int `json:"size"`
	// MaxSize is the configured capacity of the memory tier.
	MaxSize int `json:"maxSize"`
	// HitRate is the fraction of lookups that were hits since construction.
	HitRate float64 `json:"hitRate"`
	// MemoryBytes is a rough estimate of bytes held by the memory tier.
	MemoryBytes int `json:"memoryBytes"`
}

// Cache is a single bounded, expiring key-value cache. Keys are opaque
// strings chosen by the caller. Not-found is reported as a false bool,
// never an error.
type Cache interface {
	// Get returns the cached value when present and unexpired. Expired
	// entries encountered are purged. Access metadata is updated on a hit;
	// the entry TTL is not.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set inserts or replaces an entry. If ttl <= 0 the config TTL
	// applies. Inserting into a full cache evicts one victim first.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Has reports whether key is present and unexpired. Side effects match Get.
	Has(ctx context.Context, key string) (bool, error)
	// Delete removes key when present and reports whether it was.
	Delete(ctx context.Context, key string) (bool, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Stats returns a snapshot of cache state.
	Stats(ctx context.Context) (Stats, error)
	// Close releases background resources.
	Close() error
}

// options holds construction knobs shared by the cache tiers.
type options struct {
	sweepInterval time.Duration
}

// Option configures a cache tier.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{sweepInterval: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSweepInterval sets the interval for background expired-entry
// cleanup. Zero disables the background sweep; expired entries are then
// purged only lazily on access. Defaults to 1 minute.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

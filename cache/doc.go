// Package cache provides bounded, expiring, named caches with selectable
// eviction policies and an optional durable second tier.
//
// # Tiers
//
//   - [NewMemory]: in-process map guarded by a mutex, bounded by
//     Config.MaxSize with LRU, FIFO, or LFU eviction. Expired entries are
//     purged lazily on access and by a background sweep goroutine. Fastest
//     option; lost on process restart.
//
//   - [NewPersistent]: entries serialized to msgpack and written to a
//     [kv.Store] under "<prefix>:<key>" keys. Survives process restarts.
//     Writes are best-effort: storage failures trigger an expired-entry
//     purge and a warning log, and are never surfaced to the caller.
//
//   - [NewTiered]: memory tier in front of a persistent tier. Get checks
//     memory first; a persistent-tier hit is promoted back into memory with
//     its remaining TTL. Set writes through to both tiers.
//
// # Manager
//
// [Manager] holds a registry of named caches (products, api, images, ...)
// built from a [Config] table. Operations against an unconfigured cache
// name are silent no-ops; the manager never causes a caller-visible
// failure. [Manager.Named] returns a [Scoped] handle bound to one cache
// for callers that operate on a single domain.
//
// # Typed helpers
//
// Values move through the cache as []byte. The generic package functions
// [Put], [Fetch], and [Remember] marshal values with msgpack
// ([github.com/vmihailenco/msgpack/v5]). [Remember] is a cache-aside
// helper that dedupes concurrent misses for the same key via singleflight,
// so a cold key is computed once no matter how many goroutines ask for it.
//
// # Error handling
//
// Not-found is a bool, never an error. Manager-level operations return no
// errors at all: environment failures (storage unavailable, quota
// exceeded) are logged at warning level and degrade to cache-miss
// behavior.
package cache

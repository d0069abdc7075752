package engine

import (
	"time"

	"github.com/krisalay/dashcache/expiration"
	"github.com/krisalay/dashcache/types"
)

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the behavior of the cache, NOT storage.

It decides:
- Which freshness window applies to a key
- When an entry is stale
- How metrics are recorded
- What "now" means (tests swap the clock)

It does NOT:
- Store data
- Handle sharding
- Handle locking
- Call producers
*/
type CacheEngine struct {

	// Expiration resolves per-namespace TTLs and decides staleness.
	// Never nil after NewCacheEngine.
	Expiration expiration.Strategy

	// Metrics is how we keep track of what the cache is doing.
	Metrics types.Metrics

	// Clock returns the current time.
	Clock func() time.Time
}

/*
NewCacheEngine creates a CacheEngine.

A nil strategy falls back to an empty namespace table, which means every
key gets expiration.DefaultTTL. There is no way to build an engine whose
entries never expire.
*/
func NewCacheEngine(exp expiration.Strategy, metrics types.Metrics) *CacheEngine {
	if exp == nil {
		exp = expiration.NewNamespaceTTL(nil, 0)
	}

	// Ensure metrics is always non-nil
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	return &CacheEngine{
		Expiration: exp,
		Metrics:    metrics,
		Clock:      time.Now,
	}
}

// Now reads the engine clock.
func (e *CacheEngine) Now() time.Time {
	return e.Clock()
}

/*
EffectiveTTL picks the freshness window for one read:
 1. the caller's override, when positive
 2. the namespace table entry
 3. the finite default floor
*/
func (e *CacheEngine) EffectiveTTL(key string, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return e.Expiration.TTLFor(key)
}

// IsExpired checks whether a cache entry is stale for the given window.
func (e *CacheEngine) IsExpired(ent *types.CacheEntry, ttl time.Duration) bool {
	return e.Expiration.IsExpired(ent, ttl, e.Now())
}

// NewEntry stamps a value with the current time.
func (e *CacheEngine) NewEntry(key string, value any) *types.CacheEntry {
	return &types.CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: e.Now(),
	}
}

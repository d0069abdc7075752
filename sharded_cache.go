package cache

import (
	"context"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	api "github.com/krisalay/dashcache/api"
	"github.com/krisalay/dashcache/engine"
	"github.com/krisalay/dashcache/expiration"
	"github.com/krisalay/dashcache/shard"
	"github.com/krisalay/dashcache/types"
	"golang.org/x/sync/singleflight"
)

/*
ShardedCache is the TTL cache store.
This struct is the orchestrator that connects:
- shards (storage)
- the engine (freshness rules, metrics, clock)
- singleflight (one producer call per key at a time)
*/
type ShardedCache struct {
	// shards are the actual storage units. Each shard is an independent mini-cache.
	shards []*shard.Shard

	// engine contains the "rules" of the cache: TTL table, metrics, clock.
	engine *engine.CacheEngine

	// selector decides which shard a key should go to.
	selector shard.Selector

	// sf prevents several goroutines from running the producer for the same key at once.
	sf singleflight.Group

	// epoch is bumped by Clear. A load that started in an older epoch
	// must not write its result into the new one.
	epoch atomic.Uint64
}

var _ api.Cache = (*ShardedCache)(nil)

func NewShardedCache(shards int, engine *engine.CacheEngine) *ShardedCache {
	return &ShardedCache{
		shards:   shard.NewShards(shards),
		engine:   engine,
		selector: shard.HashSelector{},
	}
}

func (c *ShardedCache) shardFor(key string) *shard.Shard {
	return c.selector.Select(key, c.shards)
}

/*
Get retrieves a fresh value using the namespace TTL.
*/
func (c *ShardedCache) Get(key string) (any, bool) {
	return c.GetWithTTL(key, 0)
}

/*
GetWithTTL retrieves a fresh value, judging freshness with ttl when it is
positive and with the namespace TTL otherwise.
*/
func (c *ShardedCache) GetWithTTL(key string, ttl time.Duration) (any, bool) {
	ns := expiration.Namespace(key)
	sh := c.shardFor(key)

	ent, ok := sh.Store.Get(key)
	if !ok {
		c.engine.Metrics.Miss(ns)
		return nil, false
	}

	if c.engine.IsExpired(ent, c.engine.EffectiveTTL(key, ttl)) {
		// Only drop the exact entry we judged stale; a concurrent Set may
		// already have replaced it with a fresh one.
		sh.WriteMu.Lock()
		removed := sh.Store.DeleteIf(key, ent)
		sh.WriteMu.Unlock()

		if removed {
			c.engine.Metrics.Expire(ns)
		}
		c.engine.Metrics.Miss(ns)
		return nil, false
	}

	c.engine.Metrics.Hit(ns)
	return ent.Value, true
}

/*
Set stores a value and stamps the current time.
*/
func (c *ShardedCache) Set(key string, value any) {
	c.put(key, value)
}

func (c *ShardedCache) put(key string, value any) {
	sh := c.shardFor(key)
	ent := c.engine.NewEntry(key, value)

	sh.WriteMu.Lock()
	sh.Store.Put(key, ent)
	sh.WriteMu.Unlock()
}

// Epoch identifies the current session generation. It changes on every Clear.
func (c *ShardedCache) Epoch() uint64 {
	return c.epoch.Load()
}

/*
SetAt stores a value only if no Clear happened since epoch was read.
It reports whether the value was stored.
*/
func (c *ShardedCache) SetAt(epoch uint64, key string, value any) bool {
	if c.epoch.Load() != epoch {
		return false
	}
	c.put(key, value)
	return true
}

/*
RefreshAt is SetAt for a forced reload that bypassed the cache.
*/
func (c *ShardedCache) RefreshAt(epoch uint64, key string, value any) bool {
	if !c.SetAt(epoch, key, value) {
		return false
	}
	c.engine.Metrics.Refresh(expiration.Namespace(key))
	return true
}

/*
Delete removes a key from the cache immediately.
*/
func (c *ShardedCache) Delete(key string) bool {
	sh := c.shardFor(key)

	sh.WriteMu.Lock()
	removed := sh.Store.Delete(key)
	sh.WriteMu.Unlock()

	if removed {
		c.engine.Metrics.Invalidate(1)
	}
	return removed
}

/*
Clear empties every shard and starts a new epoch.
*/
func (c *ShardedCache) Clear() int {
	c.epoch.Add(1)

	removed := 0
	for _, sh := range c.shards {
		sh.WriteMu.Lock()
		removed += sh.Store.Reset()
		sh.WriteMu.Unlock()
	}

	c.engine.Metrics.Invalidate(removed)
	return removed
}

/*
InvalidateMatching removes every key selected by match, shard by shard.
*/
func (c *ShardedCache) InvalidateMatching(match types.Matcher) int {
	if match == nil {
		return 0
	}

	removed := 0
	for _, sh := range c.shards {
		sh.WriteMu.Lock()
		removed += sh.Store.DeleteMatching(match)
		sh.WriteMu.Unlock()
	}

	c.engine.Metrics.Invalidate(removed)
	return removed
}

/*
FetchWithCache returns the cached value when fresh; otherwise it runs
producer, stores the result and returns it.

singleflight ensures that if many goroutines miss the same key at once,
only ONE of them runs the producer and the others wait for its result.
The group key carries the epoch so a Clear starts a fresh flight.
*/
func (c *ShardedCache) FetchWithCache(
	ctx context.Context,
	key string,
	ttl time.Duration,
	producer types.LoadFunc,
) (any, error) {

	if v, ok := c.GetWithTTL(key, ttl); ok {
		return v, nil
	}

	epoch := c.Epoch()
	flight := strconv.FormatUint(epoch, 10) + "|" + key

	v, err, _ := c.sf.Do(flight, func() (any, error) {
		val, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.SetAt(epoch, key, val)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

/*
TTL returns the remaining freshness of a key under the namespace TTL,
or -2 if the key does not exist or is stale.
*/
func (c *ShardedCache) TTL(key string) time.Duration {
	ent, ok := c.shardFor(key).Store.Get(key)
	if !ok {
		return -2
	}

	d := c.engine.EffectiveTTL(key, 0) - ent.Age(c.engine.Now())
	if d < 0 {
		return -2
	}
	return d
}

// Len counts stored entries, stale ones included until they are read.
func (c *ShardedCache) Len() int {
	n := 0
	for _, sh := range c.shards {
		n += int(sh.Store.Size())
	}
	return n
}

// Keys lists stored keys selected by match (all keys when match is nil), sorted.
func (c *ShardedCache) Keys(match types.Matcher) []string {
	var keys []string
	for _, sh := range c.shards {
		for _, k := range sh.Store.Keys() {
			if match == nil || match(k) {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

/*
Fetch is the typed form of FetchWithCache.

A cached value of another type is treated as a miss and overwritten.
*/
func Fetch[V any](
	ctx context.Context,
	c *ShardedCache,
	key string,
	ttl time.Duration,
	producer func(context.Context) (V, error),
) (V, error) {

	if v, ok := c.GetWithTTL(key, ttl); ok {
		if typed, ok := v.(V); ok {
			return typed, nil
		}
	}

	v, err := c.FetchWithCache(ctx, key, ttl, func(ctx context.Context) (any, error) {
		val, err := producer(ctx)
		return val, err
	})
	if err != nil {
		var zero V
		return zero, err
	}

	typed, ok := v.(V)
	if !ok {
		// Lost a race with a Set of a different type: run the producer ourselves.
		val, err := producer(ctx)
		if err != nil {
			var zero V
			return zero, err
		}
		c.Set(key, val)
		return val, nil
	}
	return typed, nil
}

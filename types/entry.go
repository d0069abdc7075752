package types

import "time"

// CacheEntry is what a shard stores for one key.
//
// An entry is never mutated after it is written: a Set replaces the whole
// entry. That lets a reader hold on to the pointer it loaded and compare it
// later (see shard.ShardStore.DeleteIf).
type CacheEntry struct {
	Key       string
	Value     any
	CreatedAt time.Time // insertion time, the only input to freshness
}

// Age reports how long ago the entry was written.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

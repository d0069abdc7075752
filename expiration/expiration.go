// This file defines how cache entries expire over time.

package expiration

import (
	"time"

	"github.com/krisalay/dashcache/types"
)

/*
Strategy is the interface that all expiration rules must follow. Instead of
hard-coding expiration logic into the cache, we define a strategy so the
freshness rules can be swapped easily (tests use a tiny fixed table).

Freshness is decided at READ time: an entry only remembers when it was
written, and the reader decides how old is too old. That is what allows a
per-call TTL override on Get.
*/
type Strategy interface {

	// TTLFor resolves the freshness window for a key when the caller did not
	// pass an explicit one. It must never return a non-positive duration.
	TTLFor(key string) time.Duration

	// IsExpired checks whether the entry is older than ttl at the given moment.
	IsExpired(ent *types.CacheEntry, ttl time.Duration, now time.Time) bool
}

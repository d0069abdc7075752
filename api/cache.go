package cache

import (
	"context"
	"time"

	"github.com/krisalay/dashcache/types"
)

/*
Cache defines the PUBLIC API of the dashboard cache.
Sharding, expiration, metrics and loading are hidden behind this interface.

Values are stored as given. Callers must treat a returned value as
read-only: the same value is handed to every reader until it is replaced.
*/
type Cache interface {

	/*
		Get retrieves the value associated with the given key using the
		namespace TTL.

		BEHAVIOR:
		-------------------
		1. Key exists and is fresh → (value, true)
		2. Key was never set → (nil, false)
		3. Key is stale → (nil, false), and the stale entry is removed
	*/
	Get(key string) (any, bool)

	/*
		GetWithTTL is Get with an explicit freshness window that replaces
		the namespace TTL for this one read. A non-positive ttl means "use
		the namespace TTL".
	*/
	GetWithTTL(key string, ttl time.Duration) (any, bool)

	// Set stores a value and stamps the current time. Last writer wins.
	Set(key string, value any)

	// Delete removes one key. Removing a missing key is safe.
	Delete(key string) bool

	/*
		Clear empties the cache.

		Meant for the session/logout hook so one user's data never leaks
		into the next session. Loads that started before Clear do not
		write their results back afterwards.
	*/
	Clear() int

	// InvalidateMatching removes every key the matcher selects and
	// returns the count. No match is not an error.
	InvalidateMatching(match types.Matcher) int

	/*
		FetchWithCache is Get followed, on a miss, by producer and Set.

		A producer error is returned as-is and is NOT cached.
		Concurrent callers for the same key share one producer call.
	*/
	FetchWithCache(ctx context.Context, key string, ttl time.Duration, producer types.LoadFunc) (any, error)

	/*
		TTL returns how long the key stays fresh under the namespace TTL.

		RETURN VALUES:
		--------------
		>= 0 : remaining freshness
		-2   : key does not exist or is already stale
	*/
	TTL(key string) time.Duration
}

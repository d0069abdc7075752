package cache_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cache "github.com/krisalay/dashcache"
	"github.com/krisalay/dashcache/engine"
	"github.com/krisalay/dashcache/expiration"
	"github.com/krisalay/dashcache/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// ================= TEST CLOCK =================
//

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

//
// ================= HELPER: CREATE CACHE =================
//

var testTable = map[string]time.Duration{
	"stats":   time.Minute,
	"members": 10 * time.Minute,
}

func newTestCache() (*cache.ShardedCache, *fakeClock) {
	clk := newFakeClock()

	eng := engine.NewCacheEngine(
		expiration.NewNamespaceTTL(testTable, 30*time.Second),
		nil,
	)
	eng.Clock = clk.Now

	return cache.NewShardedCache(4, eng), clk
}

func constant(v any, calls *atomic.Int32) types.LoadFunc {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return v, nil
	}
}

//
// ================= BASIC OPERATIONS =================
//

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache()

	c.Set("stats", 7)

	v, ok := c.Get("stats")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestGetMissingKey(t *testing.T) {
	c, _ := newTestCache()

	v, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestOverwriteRestampsEntry(t *testing.T) {
	c, clk := newTestCache()

	c.Set("stats", 1)
	clk.Advance(50 * time.Second)
	c.Set("stats", 2)
	clk.Advance(50 * time.Second)

	// 100s after the first write, 50s after the second: still fresh.
	v, ok := c.Get("stats")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache()

	c.Set("stats", 1)
	assert.True(t, c.Delete("stats"))
	assert.False(t, c.Delete("stats"), "second delete is a no-op")

	_, ok := c.Get("stats")
	assert.False(t, ok)
}

//
// ================= TTL =================
//

func TestTTLBoundary(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		ttl   time.Duration
		fresh bool
	}{
		{"table entry just inside", "stats", time.Minute - time.Millisecond, true},
		{"table entry exactly at ttl", "stats", time.Minute, true},
		{"table entry just past", "stats", time.Minute + time.Millisecond, false},
		{"parameterised key uses namespace", "members:page=3", 10*time.Minute - time.Millisecond, true},
		{"parameterised key past", "members:page=3", 10*time.Minute + time.Millisecond, false},
		{"unknown namespace uses default", "ghost", 30*time.Second - time.Millisecond, true},
		{"unknown namespace past default", "ghost", 30*time.Second + time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clk := newTestCache()
			c.Set(tt.key, "v")
			clk.Advance(tt.ttl)

			v, ok := c.Get(tt.key)
			assert.Equal(t, tt.fresh, ok)
			if tt.fresh {
				assert.Equal(t, "v", v)
			}
		})
	}
}

func TestStaleReadEvicts(t *testing.T) {
	c, clk := newTestCache()

	c.Set("stats", 1)
	c.Set("members", 2)
	require.Equal(t, 2, c.Len())

	clk.Advance(2 * time.Minute)

	_, ok := c.Get("stats")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "stale entry removed on read")
	assert.Equal(t, []string{"members"}, c.Keys(nil))
}

func TestTTLOverride(t *testing.T) {
	c, clk := newTestCache()

	c.Set("members", "roster")
	clk.Advance(5 * time.Second)

	_, ok := c.GetWithTTL("members", 10*time.Second)
	assert.True(t, ok)

	_, ok = c.GetWithTTL("members", 4*time.Second)
	assert.False(t, ok, "override shorter than age means stale")

	_, ok = c.Get("members")
	assert.False(t, ok, "the stale read evicted the entry")
}

func TestNilStrategyStillExpires(t *testing.T) {
	clk := newFakeClock()
	eng := engine.NewCacheEngine(nil, nil)
	eng.Clock = clk.Now
	c := cache.NewShardedCache(1, eng)

	c.Set("anything", 1)
	clk.Advance(expiration.DefaultTTL + time.Second)

	_, ok := c.Get("anything")
	assert.False(t, ok)
}

func TestTTLRemaining(t *testing.T) {
	c, clk := newTestCache()

	assert.Equal(t, time.Duration(-2), c.TTL("stats"))

	c.Set("stats", 1)
	clk.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, c.TTL("stats"))

	clk.Advance(time.Minute)
	assert.Equal(t, time.Duration(-2), c.TTL("stats"))
}

//
// ================= INVALIDATION =================
//

func TestInvalidateMatching(t *testing.T) {
	c, _ := newTestCache()

	keys := []string{"members", "members:page=1", "members:page=2", "membership", "stats", "events:2024"}
	for _, k := range keys {
		c.Set(k, k)
	}

	n := c.InvalidateMatching(types.MatchNamespace("members"))
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"events:2024", "membership", "stats"}, c.Keys(nil))

	for _, k := range []string{"membership", "stats", "events:2024"} {
		v, ok := c.Get(k)
		assert.True(t, ok, k)
		assert.Equal(t, k, v)
	}
}

func TestInvalidateMatchingPatterns(t *testing.T) {
	glob, err := types.MatchGlob("events:*:2024")
	require.NoError(t, err)

	tests := []struct {
		name    string
		match   types.Matcher
		removed []string
	}{
		{"prefix", types.MatchPrefix("events:"), []string{"events:agm:2024", "events:agm:2023", "events:picnic:2024"}},
		{"glob", glob, []string{"events:agm:2024", "events:picnic:2024"}},
		{"regexp", types.MatchRegexp(regexp.MustCompile(`^events:[a-z]+:2023$`)), []string{"events:agm:2023"}},
		{"no match", types.MatchPrefix("nothing"), nil},
		{"nil matcher", nil, nil},
	}

	all := []string{"events:agm:2024", "events:agm:2023", "events:picnic:2024", "stats"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCache()
			for _, k := range all {
				c.Set(k, 1)
			}

			n := c.InvalidateMatching(tt.match)
			assert.Equal(t, len(tt.removed), n)

			gone := make(map[string]bool)
			for _, k := range tt.removed {
				gone[k] = true
			}
			for _, k := range all {
				_, ok := c.Get(k)
				assert.Equal(t, !gone[k], ok, k)
			}
		})
	}
}

func TestMatchGlobRejectsBadPattern(t *testing.T) {
	_, err := types.MatchGlob("events:[")
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	c, _ := newTestCache()

	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("members:%d", i), i)
	}
	before := c.Epoch()

	assert.Equal(t, 20, c.Clear())
	assert.Equal(t, 0, c.Len())
	assert.NotEqual(t, before, c.Epoch())
	assert.Equal(t, 0, c.Clear())
}

//
// ================= FETCH WITH CACHE =================
//

func TestFetchWithCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	var calls atomic.Int32

	v, err := c.FetchWithCache(ctx, "stats", 0, constant(10, &calls))
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = c.FetchWithCache(ctx, "stats", 0, constant(11, &calls))
	require.NoError(t, err)
	assert.Equal(t, 10, v, "second call served from cache")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchWithCacheRefetchesWhenStale(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache()
	var calls atomic.Int32

	_, err := c.FetchWithCache(ctx, "stats", 0, constant(1, &calls))
	require.NoError(t, err)

	clk.Advance(time.Minute + time.Second)

	v, err := c.FetchWithCache(ctx, "stats", 0, constant(2, &calls))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchWithCacheErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	boom := errors.New("boom")

	_, err := c.FetchWithCache(ctx, "stats", 0, func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get("stats")
	assert.False(t, ok)

	var calls atomic.Int32
	v, err := c.FetchWithCache(ctx, "stats", 0, constant(3, &calls))
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestFetchWithCacheSingleflight(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	var calls atomic.Int32
	release := make(chan struct{})
	producer := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "roster", nil
	}

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.FetchWithCache(ctx, "members", 0, producer)
			assert.NoError(t, err)
			assert.Equal(t, "roster", v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchStartedBeforeClearDoesNotRepopulate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan any)

	go func() {
		v, _ := c.FetchWithCache(ctx, "members", 0, func(context.Context) (any, error) {
			close(started)
			<-release
			return "previous user", nil
		})
		done <- v
	}()

	<-started
	c.Clear()
	close(release)

	assert.Equal(t, "previous user", <-done, "caller still gets its own result")
	_, ok := c.Get("members")
	assert.False(t, ok, "result from the old session is not cached")
}

func TestTypedFetch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	type stats struct{ Members, Events int }
	var calls atomic.Int32
	producer := func(context.Context) (stats, error) {
		calls.Add(1)
		return stats{Members: 120, Events: 4}, nil
	}

	got, err := cache.Fetch(ctx, c, "stats", 0, producer)
	require.NoError(t, err)
	assert.Equal(t, stats{120, 4}, got)

	got, err = cache.Fetch(ctx, c, "stats", 0, producer)
	require.NoError(t, err)
	assert.Equal(t, 120, got.Members)
	assert.Equal(t, int32(1), calls.Load())

	// A value of another type under the key is treated as a miss.
	c.Set("stats", "not stats")
	got, err = cache.Fetch(ctx, c, "stats", 0, producer)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Events)
	assert.Equal(t, int32(2), calls.Load())
}

//
// ================= CONCURRENCY TEST =================
//

func TestConcurrentAccess(t *testing.T) {
	c, _ := newTestCache()

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("members:%d", j%16)
				c.Set(key, id)
				c.Get(key)
				if j%50 == 0 {
					c.InvalidateMatching(types.MatchPrefix("members:1"))
				}
			}
		}(i)
	}
	wg.Wait()

	// Every surviving value is one some writer actually set.
	for _, k := range c.Keys(nil) {
		v, ok := c.Get(k)
		require.True(t, ok)
		assert.GreaterOrEqual(t, v.(int), 0)
		assert.Less(t, v.(int), 8)
	}
}

//
// ================= SESSION =================
//

type resetCounter struct{ n int }

func (r *resetCounter) Reset() { r.n++ }

func TestSessionHook(t *testing.T) {
	c, _ := newTestCache()
	c.Set("members", 1)
	c.Set("stats", 2)

	other := &resetCounter{}
	cache.NewSessionHook(c, other).EndSession()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, other.n)
}

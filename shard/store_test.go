package shard

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/krisalay/dashcache/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(key string, v any) *types.CacheEntry {
	return &types.CacheEntry{Key: key, Value: v, CreatedAt: time.Now()}
}

func TestPutGetDelete(t *testing.T) {
	s := NewCOWStore()

	s.Put("a", entry("a", 1))
	s.Put("b", entry("b", 2))
	assert.Equal(t, int64(2), s.Size())

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got.Value)

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	assert.Equal(t, int64(1), s.Size())
}

func TestReadersKeepTheirSnapshot(t *testing.T) {
	s := NewCOWStore()
	s.Put("a", entry("a", 1))

	snap := s.load()
	s.Put("b", entry("b", 2))
	s.Delete("a")

	assert.Len(t, snap, 1, "old snapshot is never mutated")
	_, ok := snap["a"]
	assert.True(t, ok)
}

func TestDeleteIfOnlyRemovesSameEntry(t *testing.T) {
	s := NewCOWStore()
	old := entry("k", "old")
	s.Put("k", old)

	fresh := entry("k", "fresh")
	s.Put("k", fresh)

	assert.False(t, s.DeleteIf("k", old), "replaced entry must survive")
	got, _ := s.Get("k")
	assert.Equal(t, "fresh", got.Value)

	assert.True(t, s.DeleteIf("k", fresh))
	assert.False(t, s.DeleteIf("missing", fresh))
}

func TestDeleteMatchingAndReset(t *testing.T) {
	s := NewCOWStore()
	for i := 0; i < 10; i++ {
		k := fmt.Sprintf("k%d", i)
		s.Put(k, entry(k, i))
	}

	before := s.load()
	assert.Equal(t, 0, s.DeleteMatching(func(string) bool { return false }))
	assert.Equal(t, fmt.Sprintf("%p", before), fmt.Sprintf("%p", s.load()), "no match keeps the snapshot")

	n := s.DeleteMatching(func(k string) bool { return k < "k5" })
	assert.Equal(t, 5, n)

	keys := s.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"k5", "k6", "k7", "k8", "k9"}, keys)

	assert.Equal(t, 5, s.Reset())
	assert.Equal(t, int64(0), s.Size())
}

func TestHashSelectorIsStable(t *testing.T) {
	shards := NewShards(8)
	sel := HashSelector{}

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("members:%d", i)
		assert.Same(t, sel.Select(key, shards), sel.Select(key, shards))
	}
	assert.Len(t, NewShards(0), 1)
}

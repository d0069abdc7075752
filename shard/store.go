package shard

import (
	"sync/atomic"

	"github.com/krisalay/dashcache/types"
)

/*
This file defines how data is actually stored inside a shard.
- Reads should be very fast and should NOT require locks
- Writes are less frequent and can afford extra work

To achieve this, we use "Copy-On-Write" (COW).

All mutating methods must be called with the shard's WriteMu held.
*/

// ShardStore is the interface used by a shard to store and retrieve cache entries.
type ShardStore interface {

	// Get retrieves an entry by key.
	Get(string) (*types.CacheEntry, bool)

	// Put inserts or replaces an entry.
	Put(string, *types.CacheEntry)

	// Delete removes an entry. It reports whether the key was present.
	Delete(string) bool

	// DeleteIf removes the key only if it still maps to exactly this entry.
	// A reader uses it to drop a stale entry without clobbering a fresh one
	// written in the meantime.
	DeleteIf(string, *types.CacheEntry) bool

	// DeleteMatching removes every key for which match returns true and
	// returns how many were removed.
	DeleteMatching(match func(string) bool) int

	// Reset drops everything and returns how many entries were removed.
	Reset() int

	// Keys returns a snapshot of the stored keys.
	Keys() []string

	// Size returns how many entries are stored.
	Size() int64
}

/*
cowStore is a Copy-On-Write implementation of ShardStore.
- Readers always see an immutable snapshot
- Writers create a NEW copy of the map
- The new map replaces the old one atomically
*/
type cowStore struct {

	// data holds map[string]*types.CacheEntry.
	data atomic.Value

	// size is kept separately so Size does not have to load the map.
	size atomic.Int64
}

func NewCOWStore() *cowStore {
	s := &cowStore{}
	s.data.Store(make(map[string]*types.CacheEntry))
	return s
}

func (s *cowStore) load() map[string]*types.CacheEntry {
	return s.data.Load().(map[string]*types.CacheEntry)
}

func (s *cowStore) swap(n map[string]*types.CacheEntry) {
	s.data.Store(n)
	s.size.Store(int64(len(n)))
}

// Get retrieves an entry from the current snapshot.
func (s *cowStore) Get(key string) (*types.CacheEntry, bool) {
	ent, ok := s.load()[key]
	return ent, ok
}

// Put copies the current map, adds the entry and swaps the copy in.
func (s *cowStore) Put(key string, ent *types.CacheEntry) {
	old := s.load()

	n := make(map[string]*types.CacheEntry, len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	n[key] = ent

	s.swap(n)
}

// Delete removes an entry. Deleting a missing key leaves the snapshot alone.
func (s *cowStore) Delete(key string) bool {
	old := s.load()
	if _, ok := old[key]; !ok {
		return false
	}

	n := make(map[string]*types.CacheEntry, len(old))
	for k, v := range old {
		if k != key {
			n[k] = v
		}
	}

	s.swap(n)
	return true
}

func (s *cowStore) DeleteIf(key string, ent *types.CacheEntry) bool {
	cur, ok := s.load()[key]
	if !ok || cur != ent {
		return false
	}
	return s.Delete(key)
}

func (s *cowStore) DeleteMatching(match func(string) bool) int {
	old := s.load()

	n := make(map[string]*types.CacheEntry, len(old))
	removed := 0
	for k, v := range old {
		if match(k) {
			removed++
			continue
		}
		n[k] = v
	}

	// Nothing matched: keep the old snapshot.
	if removed > 0 {
		s.swap(n)
	}
	return removed
}

func (s *cowStore) Reset() int {
	removed := len(s.load())
	s.swap(make(map[string]*types.CacheEntry))
	return removed
}

func (s *cowStore) Keys() []string {
	m := s.load()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Size returns how many entries are in the store.
func (s *cowStore) Size() int64 {
	return s.size.Load()
}

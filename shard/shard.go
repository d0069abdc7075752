package shard

import "sync"

/*
A shard is a small, independent piece of the cache.
Instead of having one big map and one big lock, the key space is split
into shards. Each shard:
- Holds some portion of the data
- Has its own lock for writes

Reads never take the lock (see ShardStore).
*/
type Shard struct {

	// Store holds the key → entry data for this shard.
	// It is a copy-on-write store that allows lock-free reads.
	Store ShardStore

	// WriteMu serialises writers on this shard.
	// Readers do not need it: they always see a complete snapshot.
	WriteMu sync.Mutex
}

func NewShard() *Shard {
	return &Shard{
		Store: NewCOWStore(),
	}
}

// NewShards builds n independent shards. n below one is treated as one.
func NewShards(n int) []*Shard {
	if n < 1 {
		n = 1
	}
	s := make([]*Shard, n)
	for i := range s {
		s[i] = NewShard()
	}
	return s
}

package shard

import "hash/fnv"

/*
Selector decides which shard handles a given key.
If every key went to the same shard, that shard's write lock would become
the bottleneck for the whole cache.
*/
type Selector interface {
	Select(string, []*Shard) *Shard
}

// HashSelector spreads keys over shards by FNV-1a hash.
type HashSelector struct{}

// hash converts a string key into a number. FNV is fast and non-cryptographic.
func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Select chooses the shard for a given key. The same key always lands on the same shard.
func (HashSelector) Select(key string, shards []*Shard) *Shard {
	idx := hash(key) % uint32(len(shards))
	return shards[idx]
}

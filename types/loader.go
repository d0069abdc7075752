package types

import "context"

/*
LoadFunc is the contract between the cache and whatever produces the data.

It is called when the cache misses:
 1. Cache checks memory → key not found or stale
 2. Cache calls the LoadFunc
 3. The LoadFunc fetches from the remote store / API / another cache
 4. Cache stores the result in memory
 5. Cache returns the value

The cache does not know or care whether a LoadFunc is a network call, a
local computation or another cache. A failing LoadFunc is never cached:
its error goes straight back to the caller.
*/
type LoadFunc func(ctx context.Context) (any, error)

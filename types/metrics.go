package types

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle. The cache will call
these methods whenever something happens.

Every event carries the namespace of the key (the part before the first
':'), so a dashboard can tell "members" misses apart from "stats" misses.
*/
type Metrics interface {

	// Hit is called when the cache returns a fresh value.
	Hit(namespace string)

	// Miss is called when the key was never set or has gone stale.
	Miss(namespace string)

	// Expire is called when a stale entry is removed on read.
	Expire(namespace string)

	// Invalidate is called after an explicit removal (Delete, Clear,
	// InvalidateMatching) with the number of entries removed.
	Invalidate(removed int)

	// Refresh is called when a value is written by a forced reload that
	// bypassed the cache.
	Refresh(namespace string)
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

We don't want to force every user of the cache to wire metrics. If someone
does not care, the cache still works without nil checks everywhere.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit(string)     {}
func (NoopMetrics) Miss(string)    {}
func (NoopMetrics) Expire(string)  {}
func (NoopMetrics) Invalidate(int) {}
func (NoopMetrics) Refresh(string) {}

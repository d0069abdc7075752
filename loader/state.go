package loader

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is where a tracked dataset is in its load cycle.
//
//	idle -> loading -> {loaded, errored}
//
// A refresh re-enters loading from either terminal state.
type Status int

const (
	Idle Status = iota
	Loading
	Loaded
	Errored
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Terminal reports whether the status ends a load cycle.
func (s Status) Terminal() bool {
	return s == Loaded || s == Errored
}

// Snapshot is the published state of one cache key.
type Snapshot struct {
	Key       string
	Status    Status
	Value     any
	Err       error
	FromCache bool
	UpdatedAt time.Time
}

/*
Request is the handle returned by Schedule and Refresh.

It completes with the outcome of THIS request. The published Snapshot of
the key may differ when a newer request for the same key superseded it.
*/
type Request struct {
	ID   ulid.ULID
	Key  string
	Tier Priority

	done      chan struct{}
	value     any
	err       error
	fromCache bool
}

func newRequest(key string, tier Priority) *Request {
	return &Request{
		ID:   ulid.Make(),
		Key:  key,
		Tier: tier,
		done: make(chan struct{}),
	}
}

func (r *Request) complete(value any, err error, fromCache bool) {
	r.value = value
	r.err = err
	r.fromCache = fromCache
	close(r.done)
}

// Done is closed once the request has an outcome.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completes or ctx ends. Giving up on the
// wait does not cancel the fetch.
func (r *Request) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FromCache waits for completion and reports whether the value came from a
// fresh cache entry rather than the producer.
func (r *Request) FromCache() bool {
	<-r.done
	return r.fromCache
}

package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/krisalay/dashcache/types"
)

var (
	ErrClosed     = errors.New("loader: closed")
	ErrNoProducer = errors.New("loader: no producer registered for key")
)

// Store is the part of the TTL cache the loader needs.
type Store interface {
	GetWithTTL(key string, ttl time.Duration) (any, bool)
	Epoch() uint64
	SetAt(epoch uint64, key string, value any) bool
	RefreshAt(epoch uint64, key string, value any) bool
}

// Metrics receives loader lifecycle events.
type Metrics interface {
	Scheduled(tier Priority)
	Dispatched(tier Priority, waited time.Duration)
	Completed(tier Priority, err error)
	Superseded(tier Priority)
}

type NoopMetrics struct{}

func (NoopMetrics) Scheduled(Priority)                 {}
func (NoopMetrics) Dispatched(Priority, time.Duration) {}
func (NoopMetrics) Completed(Priority, error)          {}
func (NoopMetrics) Superseded(Priority)                {}

// keyState tracks one cache key.
type keyState struct {
	snap     Snapshot
	issued   uint64 // generation handed to the newest request
	applied  uint64 // generation of the published outcome
	refresh  uint64 // generation of the newest refresh still running, 0 if none
	ttl      time.Duration
	producer types.LoadFunc
	subs     map[uint64]chan Snapshot
}

/*
Loader is the priority-staggered data loader.

A dashboard fires many independent reads on mount. The loader answers
fresh cache hits right away and defers misses by their tier delay, so the
critical reads are requested first and are never held back. It does not
guarantee completion order: the network can still reorder responses.

For one key, the outcome of the most recently issued request wins. A
result that completes after a newer request has already published is
discarded, so an explicit Refresh beats a background load that was
scheduled before it even if the background load finishes later.

Nothing is ever cancelled. A caller that loses interest simply stops
waiting on its Request.
*/
type Loader struct {
	store   Store
	tiers   Tiers
	metrics Metrics

	mu     sync.Mutex
	states map[string]*keyState
	epoch  uint64 // bumped by Reset
	nextID uint64 // subscription ids
	closed bool

	pump *pump
}

// NewLoader validates the tier table and starts the dispatch pump.
func NewLoader(store Store, tiers Tiers, metrics Metrics) (*Loader, error) {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	l := &Loader{
		store:   store,
		tiers:   tiers.clone(),
		metrics: metrics,
		states:  make(map[string]*keyState),
	}
	l.pump = newPump(l.dispatch)
	return l, nil
}

/*
Schedule asks for a dataset at the given tier.

BEHAVIOR:
---------
1. The key is published as loading.
2. A fresh cache entry completes the request at once, whatever the tier.
3. Otherwise the fetch waits out the tier delay, checks the cache once
   more, and only then calls producer. The result is cached and published
   as loaded, or published as errored (never cached, never retried).

ttl overrides the namespace TTL for the freshness checks; zero means the
namespace TTL. The producer is remembered for Refresh.
*/
func (l *Loader) Schedule(tier Priority, key string, ttl time.Duration, producer types.LoadFunc) *Request {
	req := newRequest(key, tier)

	delay, err := l.tiers.Delay(tier)
	if err != nil {
		req.complete(nil, err, false)
		return req
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		req.complete(nil, ErrClosed, false)
		return req
	}

	st := l.state(key)
	st.ttl = ttl
	st.producer = producer
	st.issued++
	gen := st.issued
	l.publish(st, Snapshot{Key: key, Status: Loading})

	if v, ok := l.store.GetWithTTL(key, ttl); ok {
		l.applyCached(st, gen)
		l.publish(st, Snapshot{Key: key, Status: Loaded, Value: v, FromCache: true})
		l.mu.Unlock()

		req.complete(v, nil, true)
		return req
	}

	j := &job{
		key:        key,
		tier:       tier,
		ttl:        ttl,
		producer:   producer,
		gen:        gen,
		storeEpoch: l.store.Epoch(),
		stateEpoch: l.epoch,
		req:        req,
	}
	l.mu.Unlock()

	l.metrics.Scheduled(tier)
	l.enqueue(j, delay)
	return req
}

// Refresh reloads a key with the producer last given to Schedule.
func (l *Loader) Refresh(key string) *Request {
	l.mu.Lock()
	var producer types.LoadFunc
	if st, ok := l.states[key]; ok {
		producer = st.producer
	}
	l.mu.Unlock()

	if producer == nil {
		req := newRequest(key, Critical)
		req.complete(nil, fmt.Errorf("%w: %q", ErrNoProducer, key), false)
		return req
	}
	return l.RefreshWith(key, producer)
}

/*
RefreshWith bypasses the cache: producer always runs, immediately, and a
successful result overwrites the cached value even if that value was
still fresh. Used for user-initiated reloads.
*/
func (l *Loader) RefreshWith(key string, producer types.LoadFunc) *Request {
	req := newRequest(key, Critical)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		req.complete(nil, ErrClosed, false)
		return req
	}

	st := l.state(key)
	st.producer = producer
	st.issued++
	st.refresh = st.issued
	j := &job{
		key:        key,
		tier:       Critical,
		ttl:        st.ttl,
		producer:   producer,
		refresh:    true,
		gen:        st.issued,
		storeEpoch: l.store.Epoch(),
		stateEpoch: l.epoch,
		req:        req,
	}
	l.publish(st, Snapshot{Key: key, Status: Loading})
	l.mu.Unlock()

	l.metrics.Scheduled(Critical)
	l.enqueue(j, 0)
	return req
}

func (l *Loader) enqueue(j *job, delay time.Duration) {
	now := time.Now()
	j.queuedAt = now
	j.due = now.Add(delay)
	if !l.pump.push(j) {
		l.finish(j, nil, ErrClosed, false)
	}
}

// dispatch runs on the pump goroutine and must not block it.
func (l *Loader) dispatch(j *job) {
	l.metrics.Dispatched(j.tier, time.Since(j.queuedAt))
	go l.run(j)
}

func (l *Loader) run(j *job) {
	// The delay may have let another load fill the cache.
	if !j.refresh {
		if v, ok := l.store.GetWithTTL(j.key, j.ttl); ok {
			l.finish(j, v, nil, true)
			return
		}
	}

	v, err := j.producer(context.Background())
	l.finish(j, v, err, false)
}

// finish publishes an outcome unless a newer request for the key already did.
func (l *Loader) finish(j *job, v any, err error, fromCache bool) {
	defer j.req.complete(v, err, fromCache)

	if !fromCache {
		l.metrics.Completed(j.tier, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[j.key]
	if !ok || j.stateEpoch != l.epoch {
		l.metrics.Superseded(j.tier)
		return
	}
	if j.refresh && st.refresh == j.gen {
		st.refresh = 0
	}
	if j.gen < st.applied {
		l.metrics.Superseded(j.tier)
		return
	}
	if fromCache {
		l.applyCached(st, j.gen)
	} else {
		st.applied = j.gen
	}

	if err != nil {
		log.Printf("[ERROR] loader: fetch %q at %s priority failed: %v", j.key, j.tier, err)
		l.publish(st, Snapshot{Key: j.key, Status: Errored, Err: err})
		return
	}

	if !fromCache {
		if j.refresh {
			l.store.RefreshAt(j.storeEpoch, j.key, v)
		} else {
			l.store.SetAt(j.storeEpoch, j.key, v)
		}
	}
	l.publish(st, Snapshot{Key: j.key, Status: Loaded, Value: v, FromCache: fromCache})
}

// applyCached records a cache-served outcome. A value read from the cache
// never supersedes a refresh still running, so the refresh result lands
// when it arrives. Caller holds l.mu.
func (l *Loader) applyCached(st *keyState, gen uint64) {
	if st.refresh != 0 && st.refresh < gen {
		return
	}
	st.applied = gen
}

// state returns the tracked state for key, creating it idle. Caller holds l.mu.
func (l *Loader) state(key string) *keyState {
	st, ok := l.states[key]
	if !ok {
		st = &keyState{
			snap: Snapshot{Key: key, Status: Idle},
			subs: make(map[uint64]chan Snapshot),
		}
		l.states[key] = st
	}
	return st
}

// publish records and fans out a snapshot. Caller holds l.mu.
func (l *Loader) publish(st *keyState, snap Snapshot) {
	snap.UpdatedAt = time.Now()
	st.snap = snap

	for _, ch := range st.subs {
		select {
		case ch <- snap:
		default:
			// Slow subscriber: drop the oldest snapshot so the newest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Status returns the latest published snapshot for key (Idle if never requested).
func (l *Loader) Status(key string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.states[key]; ok {
		return st.snap
	}
	return Snapshot{Key: key, Status: Idle}
}

/*
Subscribe returns a channel of snapshots for key and a function to stop
listening. The current snapshot is delivered first. The channel is closed
by the cancel function, by Reset and by Close.
*/
func (l *Loader) Subscribe(key string) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		close(ch)
		return ch, func() {}
	}

	st := l.state(key)
	l.nextID++
	id := l.nextID
	st.subs[id] = ch
	ch <- st.snap

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.states[key]; ok && cur == st {
				if sub, ok := st.subs[id]; ok {
					delete(st.subs, id)
					close(sub)
				}
			}
		})
	}
}

/*
Reset forgets every tracked key and closes every subscription. Fetches
already queued or running still complete their Requests but no longer
publish. Called at session end.
*/
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.epoch++
	l.dropStates()
}

// Close stops the pump. Jobs still waiting out their delay complete with ErrClosed.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	for _, j := range l.pump.close() {
		l.finish(j, nil, ErrClosed, false)
	}

	l.mu.Lock()
	l.dropStates()
	l.mu.Unlock()
}

// dropStates closes all subscriptions. Caller holds l.mu.
func (l *Loader) dropStates() {
	for _, st := range l.states {
		for id, ch := range st.subs {
			delete(st.subs, id)
			close(ch)
		}
	}
	l.states = make(map[string]*keyState)
}

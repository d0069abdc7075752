package loader

import (
	"container/heap"
	"sync"
	"time"

	"github.com/krisalay/dashcache/types"
)

// job is one deferred fetch waiting for its tier delay to elapse.
type job struct {
	key      string
	tier     Priority
	ttl      time.Duration
	producer types.LoadFunc
	refresh  bool

	due      time.Time
	queuedAt time.Time
	seq      uint64

	gen        uint64 // per-key generation, orders results for the same key
	storeEpoch uint64 // cache epoch at issue time
	stateEpoch uint64 // loader epoch at issue time

	req *Request
}

// jobHeap orders jobs by due time, then tier, then issue order.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	if h[i].tier != h[j].tier {
		return h[i].tier < h[j].tier
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

/*
pump is the single timer-driven dispatcher.

Jobs wait in a heap keyed by due time. One goroutine sleeps until the
earliest job is due, hands every due job to dispatch, then sleeps again.
A push wakes it so a newly queued critical job is not stuck behind a
long timer.
*/
type pump struct {
	mu     sync.Mutex
	queue  jobHeap
	seq    uint64
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	dispatch func(*job)
}

func newPump(dispatch func(*job)) *pump {
	p := &pump{
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		dispatch: dispatch,
	}
	go p.loop()
	return p
}

// push queues a job. It returns false once the pump has stopped.
func (p *pump) push(j *job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.seq++
	j.seq = p.seq
	heap.Push(&p.queue, j)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// due pops every job whose time has come and reports how long until the next one.
func (p *pump) due(now time.Time) ([]*job, time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ready []*job
	for p.queue.Len() > 0 && !p.queue[0].due.After(now) {
		ready = append(ready, heap.Pop(&p.queue).(*job))
	}
	if p.queue.Len() == 0 {
		return ready, 0, false
	}
	return ready, p.queue[0].due.Sub(now), true
}

func (p *pump) loop() {
	defer close(p.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		ready, wait, pending := p.due(time.Now())
		for _, j := range ready {
			p.dispatch(j)
		}

		var fire <-chan time.Time
		if pending {
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-fire:
		case <-p.wake:
			timer.Stop()
		case <-p.stop:
			timer.Stop()
			return
		}
	}
}

// close stops the loop and returns the jobs that never became due.
func (p *pump) close() []*job {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	left := make([]*job, 0, p.queue.Len())
	for p.queue.Len() > 0 {
		left = append(left, heap.Pop(&p.queue).(*job))
	}
	return left
}

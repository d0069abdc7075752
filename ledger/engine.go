package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Path says how a Compute call was served.
type Path int

const (
	// Uncached: no cache key, plain full computation.
	Uncached Path = iota
	// Unchanged: same page and opening balance, cached result returned as is.
	Unchanged
	// Extended: newer entries appeared in front of the cached page; only they were computed.
	Extended
	// Full: anything else; the cached state was discarded and rebuilt.
	Full
)

func (p Path) String() string {
	switch p {
	case Uncached:
		return "uncached"
	case Unchanged:
		return "unchanged"
	case Extended:
		return "extended"
	case Full:
		return "full"
	}
	return "unknown"
}

// Metrics receives one event per successful Compute.
type Metrics interface {
	Computed(path Path, recomputed int)
}

type NoopMetrics struct{}

func (NoopMetrics) Computed(Path, int) {}

// Result is a computation outcome with how it was obtained.
type Result struct {
	Balances   *Balances
	Path       Path
	Recomputed int // entries whose balance was calculated in this call
}

// state is what the engine remembers per cache key.
type state struct {
	opening  decimal.Decimal
	seq      []posting // page order, newest first
	balances *Balances
}

/*
Engine computes running balances for ledger pages and remembers the last
result per cache key.

Pages are newest first. Balances accumulate oldest first, starting from
the opening balance, so an entry's balance includes every older entry.

On each keyed call the new page is compared with the remembered one:
  - same postings, same opening balance: the remembered Balances is
    returned untouched
  - the remembered page is a suffix of the new one (newer entries were
    added in front, everything older is identical): only the new entries
    are computed, seeded from the balance of the newest remembered entry
  - anything else, including an amount edit or older entries showing up
    at the end: full recomputation

The extended case performs exactly the same additions as a full run over
the new page, and decimal addition is exact, so both give the same result.
*/
type Engine struct {
	mu      sync.Mutex
	states  map[string]*state
	metrics Metrics
}

func NewEngine(metrics Metrics) *Engine {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Engine{
		states:  make(map[string]*state),
		metrics: metrics,
	}
}

// Compute returns the balances for entries. An empty cacheKey disables caching.
func (e *Engine) Compute(entries []Entry, opening float64, cacheKey string) (*Balances, error) {
	res, err := e.ComputeResult(entries, opening, cacheKey)
	if err != nil {
		return nil, err
	}
	return res.Balances, nil
}

// ComputeResult is Compute that also reports which path served the call.
func (e *Engine) ComputeResult(entries []Entry, opening float64, cacheKey string) (Result, error) {
	seq, err := postings(entries)
	if err != nil {
		return Result{}, err
	}
	if len(seq) == 0 {
		return Result{Balances: empty, Path: Uncached}, nil
	}
	open, err := openingDecimal(opening)
	if err != nil {
		return Result{}, err
	}

	if cacheKey == "" {
		res := Result{Balances: accumulate(seq, open), Path: Uncached, Recomputed: len(seq)}
		e.metrics.Computed(res.Path, res.Recomputed)
		return res, nil
	}

	e.mu.Lock()
	res := e.computeCached(cacheKey, seq, open)
	e.mu.Unlock()

	e.metrics.Computed(res.Path, res.Recomputed)
	return res, nil
}

// computeCached classifies seq against the remembered state. Caller holds e.mu.
func (e *Engine) computeCached(key string, seq []posting, open decimal.Decimal) Result {
	prev, ok := e.states[key]
	if ok && prev.opening.Equal(open) {
		switch added := extension(prev.seq, seq); {
		case added == 0:
			return Result{Balances: prev.balances, Path: Unchanged}
		case added > 0:
			b := extend(prev.balances, seq, added)
			e.states[key] = &state{opening: open, seq: seq, balances: b}
			return Result{Balances: b, Path: Extended, Recomputed: added}
		}
	}

	b := accumulate(seq, open)
	e.states[key] = &state{opening: open, seq: seq, balances: b}
	return Result{Balances: b, Path: Full, Recomputed: len(seq)}
}

/*
extension compares the remembered page with the new one.
It returns 0 when they are identical, the number of new leading entries
when old is a proper suffix of cur, and -1 otherwise.
*/
func extension(old, cur []posting) int {
	if len(old) == 0 || len(cur) < len(old) {
		return -1
	}
	added := len(cur) - len(old)
	for i, p := range old {
		if !p.equal(cur[added+i]) {
			return -1
		}
	}
	return added
}

// accumulate runs the full computation, oldest entry first.
func accumulate(seq []posting, open decimal.Decimal) *Balances {
	b := &Balances{
		byID:  make(map[string]decimal.Decimal, len(seq)),
		order: make([]string, len(seq)),
	}

	running := open
	for i := len(seq) - 1; i >= 0; i-- {
		running = running.Add(seq[i].amount)
		b.byID[seq[i].id] = running
		b.order[i] = seq[i].id
	}
	return b
}

// extend computes only seq[:added], seeded from the newest remembered balance.
func extend(prev *Balances, seq []posting, added int) *Balances {
	b := &Balances{
		byID:  make(map[string]decimal.Decimal, len(seq)),
		order: make([]string, len(seq)),
	}
	for id, v := range prev.byID {
		b.byID[id] = v
	}
	copy(b.order[added:], prev.order)

	running := prev.byID[seq[added].id]
	for i := added - 1; i >= 0; i-- {
		running = running.Add(seq[i].amount)
		b.byID[seq[i].id] = running
		b.order[i] = seq[i].id
	}
	return b
}

// Invalidate forgets the remembered state for one key.
func (e *Engine) Invalidate(cacheKey string) {
	e.mu.Lock()
	delete(e.states, cacheKey)
	e.mu.Unlock()
}

// Reset forgets every key.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.states = make(map[string]*state)
	e.mu.Unlock()
}

// Compute is a one-off computation without any caching.
func Compute(entries []Entry, opening float64) (*Balances, error) {
	seq, err := postings(entries)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return empty, nil
	}
	open, err := openingDecimal(opening)
	if err != nil {
		return nil, err
	}
	return accumulate(seq, open), nil
}

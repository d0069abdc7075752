package ledger

import "github.com/shopspring/decimal"

/*
Balances maps entry ids to the running balance after that entry.

A Balances is immutable once returned. The engine hands the same value to
every caller whose page did not change, so nothing may write to it.
*/
type Balances struct {
	byID  map[string]decimal.Decimal
	order []string // page order, newest first
}

var empty = &Balances{byID: map[string]decimal.Decimal{}}

// Get returns the running balance after the entry with id.
// Parts and unknown ids are absent.
func (b *Balances) Get(id string) (decimal.Decimal, bool) {
	v, ok := b.byID[id]
	return v, ok
}

// Float is Get converted for display.
func (b *Balances) Float(id string) (float64, bool) {
	v, ok := b.byID[id]
	if !ok {
		return 0, false
	}
	return v.InexactFloat64(), true
}

func (b *Balances) Len() int {
	return len(b.order)
}

// IDs returns the accumulated entry ids in page order.
func (b *Balances) IDs() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Map returns a copy the caller may modify.
func (b *Balances) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b.byID))
	for id, v := range b.byID {
		out[id] = v
	}
	return out
}

// Equal reports whether both hold the same ids, order and amounts.
func (b *Balances) Equal(o *Balances) bool {
	if len(b.order) != len(o.order) {
		return false
	}
	for i, id := range b.order {
		if o.order[i] != id || !b.byID[id].Equal(o.byID[id]) {
			return false
		}
	}
	return true
}

package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Kind says which way money moved.
type Kind int

const (
	Income Kind = iota + 1
	Expense
)

func (k Kind) String() string {
	switch k {
	case Income:
		return "income"
	case Expense:
		return "expense"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

/*
Entry is one movement in a ledger page.

Amount is always non-negative; Kind carries the sign.

Virtual entries and entries with a ParentID are parts of another entry
(a split payment, an allocation). Their amount is already included in the
parent, so they are never accumulated on their own.
*/
type Entry struct {
	ID       string
	Kind     Kind
	Amount   float64
	Virtual  bool
	ParentID string
}

// Part reports whether the entry is a decomposed part of another entry.
func (e Entry) Part() bool {
	return e.Virtual || e.ParentID != ""
}

var (
	ErrEmptyID        = errors.New("ledger: entry has no id")
	ErrDuplicateID    = errors.New("ledger: duplicate entry id")
	ErrUnknownKind    = errors.New("ledger: entry kind must be income or expense")
	ErrInvalidAmount  = errors.New("ledger: amount must be finite and non-negative")
	ErrUnknownParent  = errors.New("ledger: parent id does not match any entry")
	ErrInvalidOpening = errors.New("ledger: opening balance must be finite")
)

// EntryError names the entry that made a computation fail.
type EntryError struct {
	Index int
	ID    string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d (%q): %v", e.Index, e.ID, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// posting is an accumulated entry reduced to what the balance depends on.
type posting struct {
	id     string
	amount decimal.Decimal // signed
}

func (p posting) equal(o posting) bool {
	return p.id == o.id && p.amount.Equal(o.amount)
}

/*
postings validates the whole page and returns the accumulated entries in
page order (newest first).

Parts are checked too: a part pointing at a missing parent is rejected
because it would silently drop money from the total.
*/
func postings(entries []Entry) ([]posting, error) {
	ids := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, &EntryError{Index: i, Err: ErrEmptyID}
		}
		if _, dup := ids[e.ID]; dup {
			return nil, &EntryError{Index: i, ID: e.ID, Err: ErrDuplicateID}
		}
		ids[e.ID] = struct{}{}
	}

	out := make([]posting, 0, len(entries))
	for i, e := range entries {
		if e.ParentID != "" {
			if _, ok := ids[e.ParentID]; !ok || e.ParentID == e.ID {
				return nil, &EntryError{Index: i, ID: e.ID, Err: fmt.Errorf("%w: %q", ErrUnknownParent, e.ParentID)}
			}
		}
		if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount < 0 {
			return nil, &EntryError{Index: i, ID: e.ID, Err: fmt.Errorf("%w: %v", ErrInvalidAmount, e.Amount)}
		}
		amt := decimal.NewFromFloat(e.Amount)
		switch e.Kind {
		case Income:
		case Expense:
			amt = amt.Neg()
		default:
			return nil, &EntryError{Index: i, ID: e.ID, Err: fmt.Errorf("%w: %s", ErrUnknownKind, e.Kind)}
		}
		if e.Part() {
			continue
		}
		out = append(out, posting{id: e.ID, amount: amt})
	}
	return out, nil
}

func openingDecimal(opening float64) (decimal.Decimal, error) {
	if math.IsNaN(opening) || math.IsInf(opening, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidOpening, opening)
	}
	return decimal.NewFromFloat(opening), nil
}

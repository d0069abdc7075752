package loader

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority is a scheduling tier. Lower values are more important.
type Priority int

const (
	// Critical reads are issued immediately.
	Critical Priority = iota
	High
	Normal
	Low
)

var priorityNames = [...]string{"critical", "high", "normal", "low"}

var (
	ErrUnknownTier  = errors.New("loader: unknown priority tier")
	ErrInvalidTiers = errors.New("loader: invalid tier table")
)

func (p Priority) String() string {
	if p < Critical || p > Low {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority accepts the lower-case tier names used in configuration.
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Priorities lists every tier from most to least important.
func Priorities() []Priority {
	return []Priority{Critical, High, Normal, Low}
}

// Tiers maps each priority to how long its fetches are deferred.
type Tiers map[Priority]time.Duration

// DefaultTiers is the dashboard schedule: critical data first, the rest staggered behind it.
func DefaultTiers() Tiers {
	return Tiers{
		Critical: 0,
		High:     200 * time.Millisecond,
		Normal:   time.Second,
		Low:      3 * time.Second,
	}
}

/*
Validate enforces the tier invariants:
- every tier has an entry
- Critical is never delayed
- no delay is negative
- delays never decrease as importance drops
*/
func (t Tiers) Validate() error {
	prev := time.Duration(0)
	for _, p := range Priorities() {
		d, ok := t[p]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidTiers, p)
		}
		if d < 0 {
			return fmt.Errorf("%w: %s delay %s is negative", ErrInvalidTiers, p, d)
		}
		if p == Critical && d != 0 {
			return fmt.Errorf("%w: critical delay must be zero, got %s", ErrInvalidTiers, d)
		}
		if d < prev {
			return fmt.Errorf("%w: %s delay %s is shorter than the tier above it (%s)", ErrInvalidTiers, p, d, prev)
		}
		prev = d
	}
	return nil
}

// Delay returns the deferral for a tier.
func (t Tiers) Delay(p Priority) (time.Duration, error) {
	d, ok := t[p]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTier, p)
	}
	return d, nil
}

func (t Tiers) clone() Tiers {
	c := make(Tiers, len(t))
	for p, d := range t {
		c[p] = d
	}
	return c
}

package detector

import (
	"os"

	"loadsentry/pkg/constants"
	"loadsentry/pkg/logger"
	"loadsentry/pkg/store/state"
)

const countersFile = "counters.json"

// CounterBank holds one consecutive-breach counter per dimension. A breached
// tick increments the counter by exactly one, any non-breaching tick resets
// it to zero, and a dimension is triggered once its counter reaches the
// configured consecutive count.
//
// The bank is loaded at the start of every engine invocation and saved at the
// end, so hysteresis survives the process-per-tick execution model.
type CounterBank struct {
	consecutive int
	counts      map[string]int
}

// NewCounterBank creates an empty bank.
func NewCounterBank(consecutive int) *CounterBank {
	return &CounterBank{
		consecutive: consecutive,
		counts:      make(map[string]int),
	}
}

// LoadCounterBank restores the bank from the state store. A missing or
// corrupt counter file re-initializes from scratch rather than failing the
// tick.
func LoadCounterBank(store *state.Store, consecutive int) *CounterBank {
	bank := NewCounterBank(consecutive)

	var counts map[string]int
	if err := store.Load(countersFile, &counts); err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("counter file unreadable, starting fresh: %v", err)
		}
		return bank
	}
	for dim, n := range counts {
		if n > 0 {
			bank.counts[dim] = n
		}
	}
	return bank
}

// Save persists the bank to the state store.
func (b *CounterBank) Save(store *state.Store) error {
	return store.Save(countersFile, b.counts)
}

// Evaluate updates the dimension's counter for one tick and reports whether
// the dimension has triggered.
func (b *CounterBank) Evaluate(dim constants.Dimension, value, threshold float64, cmp Comparison) bool {
	return b.EvaluateBool(dim, breached(value, threshold, cmp))
}

// EvaluateBool is Evaluate for dimensions whose breach condition is computed
// by the caller (ENA contributions, probe failures).
func (b *CounterBank) EvaluateBool(dim constants.Dimension, isBreached bool) bool {
	key := dim.String()
	if !isBreached {
		delete(b.counts, key)
		return false
	}
	b.counts[key]++
	return b.counts[key] >= b.consecutive
}

// JustTriggered reports whether the dimension reached the consecutive count
// on this exact tick, for the one-time operator warning.
func (b *CounterBank) JustTriggered(dim constants.Dimension) bool {
	return b.counts[dim.String()] == b.consecutive
}

// Count returns a dimension's current consecutive-breach count.
func (b *CounterBank) Count(dim constants.Dimension) int {
	return b.counts[dim.String()]
}

// Counts returns a copy of all non-zero counters.
func (b *CounterBank) Counts() map[string]int {
	out := make(map[string]int, len(b.counts))
	for dim, n := range b.counts {
		out[dim] = n
	}
	return out
}

// ResetResource zeroes every resource-side counter while preserving
// RPC-related counters. Used when a resource-only breach is suppressed as a
// false positive on a healthy node.
func (b *CounterBank) ResetResource() {
	for dim := range b.counts {
		if constants.IsResource(dim) {
			delete(b.counts, dim)
		}
	}
}

func breached(value, threshold float64, cmp Comparison) bool {
	switch cmp {
	case CompareAbove:
		return value > threshold
	case CompareAboveOrEqual:
		return value >= threshold
	case CompareBelow:
		return value < threshold
	}
	return false
}

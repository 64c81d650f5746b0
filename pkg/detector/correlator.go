package detector

import (
	"loadsentry/pkg/constants"
)

// Outcome classifies one tick after merging resource-side signals with the
// external node-health flag.
type Outcome int

const (
	// OutcomeNormal no breach anywhere; keep monitoring.
	OutcomeNormal Outcome = iota
	// OutcomeSuppressed resource-only breach on a healthy node; treated as a
	// false positive and resource counters are reset.
	OutcomeSuppressed
	// OutcomeConfirmedRPC client-observed RPC degradation; sufficient on its
	// own regardless of resource state.
	OutcomeConfirmedRPC
	// OutcomeConfirmedSystem resource breach corroborated by an unhealthy
	// node.
	OutcomeConfirmedSystem
	// OutcomeConfirmedNodeFailure node unhealthy with no breach of any
	// monitored dimension; reported as the NODE_UNHEALTHY pseudo-dimension.
	OutcomeConfirmedNodeFailure
)

// Detected reports whether the outcome confirms a bottleneck.
func (o Outcome) Detected() bool {
	switch o {
	case OutcomeConfirmedRPC, OutcomeConfirmedSystem, OutcomeConfirmedNodeFailure:
		return true
	}
	return false
}

// Triggered is the set of dimensions that reached their consecutive count
// this tick, split by kind, with display values index-aligned to names.
type Triggered struct {
	Names  []string
	Values []string
}

func (t *Triggered) add(dim constants.Dimension, value string) {
	t.Names = append(t.Names, dim.String())
	t.Values = append(t.Values, value)
}

func (t *Triggered) any() bool {
	return len(t.Names) > 0
}

// Classification is the correlator's verdict input for the publisher.
type Classification struct {
	Outcome    Outcome
	Dimensions []string
	Values     []string
	Reason     string
}

// Correlator merges resource bottleneck signals with the node-health flag.
// Transient resource saturation alone is common and often benign under
// extreme load; it becomes meaningful only when corroborated by a node-level
// health failure or a genuine client-observed RPC degradation.
type Correlator struct{}

// NewCorrelator creates the correlator.
func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Classify applies the transition table in priority order.
func (c *Correlator) Classify(resource, rpc Triggered, nodeUnhealthy bool) Classification {
	switch {
	case rpc.any():
		// RPC performance breach alone is sufficient; resource dimensions
		// that also triggered are reported alongside.
		cls := Classification{
			Outcome:    OutcomeConfirmedRPC,
			Dimensions: append(append([]string{}, rpc.Names...), resource.Names...),
			Values:     append(append([]string{}, rpc.Values...), resource.Values...),
			Reason:     "rpc performance degradation observed by the load client",
		}
		if nodeUnhealthy {
			cls.Dimensions = append(cls.Dimensions, constants.DimNodeUnhealthy.String())
			cls.Values = append(cls.Values, "out of sync beyond threshold")
		}
		return cls

	case resource.any() && nodeUnhealthy:
		// resource breach corroborated by node health
		return Classification{
			Outcome:    OutcomeConfirmedSystem,
			Dimensions: append(append([]string{}, resource.Names...), constants.DimNodeUnhealthy.String()),
			Values:     append(append([]string{}, resource.Values...), "out of sync beyond threshold"),
			Reason:     "resource saturation corroborated by node health failure",
		}

	case resource.any():
		// healthy node, no client-visible degradation: suppressed as a false
		// positive. Resource counters are reset by the caller; RPC counters
		// are preserved. A persistent resource-only condition therefore never
		// escalates on its own, which is deliberate.
		return Classification{
			Outcome: OutcomeSuppressed,
			Reason:  "resource-only breach on healthy node suppressed",
		}

	case nodeUnhealthy:
		return Classification{
			Outcome:    OutcomeConfirmedNodeFailure,
			Dimensions: []string{constants.DimNodeUnhealthy.String()},
			Values:     []string{"out of sync beyond threshold"},
			Reason:     "node persistently unhealthy without resource breach",
		}
	}

	return Classification{Outcome: OutcomeNormal}
}

package detector

import (
	"fmt"
	"os"
	"strings"

	"loadsentry/pkg/logger"
	"loadsentry/pkg/store/state"
)

const enaBaselineFile = "ena_baseline.json"

const (
	enaExceededSuffix  = "_allowance_exceeded"
	enaAvailableSuffix = "_allowance_available"
)

// ENATracker watches the ENA allowance-exceeded counters. The underlying
// counters are cumulative since host boot, so the first observed values are
// captured as a baseline and only the delta since then is reported; without
// that, any long-lived host would permanently report this bottleneck.
type ENATracker struct {
	store *state.Store
}

// NewENATracker creates the tracker.
func NewENATracker(store *state.Store) *ENATracker {
	return &ENATracker{store: store}
}

// Evaluate reads the metric history file and reports whether any allowance
// was exhausted since the baseline. The returned detail lists contributing
// fields for the verdict.
func (t *ENATracker) Evaluate(metricFile string) (breached bool, detail string) {
	header, first, last, err := readMetricTable(metricFile)
	if err != nil || len(last) == 0 {
		logger.Debugf("ena: metric history unavailable (%s): %v", metricFile, err)
		return false, ""
	}

	baseline := t.loadOrCapture(header, first)
	current := newRowView(header, last)

	var contributions []string
	for _, name := range header {
		switch {
		case strings.HasSuffix(name, enaExceededSuffix):
			cur := current.first([]string{name})
			delta := cur - baseline[name]
			if delta < 0 {
				// cumulative counter reset on the host; re-anchor at zero
				delta = 0
			}
			if delta > 0 {
				contributions = append(contributions, fmt.Sprintf("%s +%.0f", name, delta))
			}
		case strings.HasSuffix(name, enaAvailableSuffix):
			// raw value, not delta: zero remaining allowance means the
			// resource is exhausted right now
			if v, ok := current.lookup([]string{name}); ok && v == 0 {
				contributions = append(contributions, name+" exhausted")
			}
		}
	}

	if len(contributions) == 0 {
		return false, ""
	}
	return true, strings.Join(contributions, ", ")
}

// loadOrCapture returns the persisted baseline, capturing it from the first
// data row when this is the first invocation of the run. The baseline is
// read-only for the rest of the run.
func (t *ENATracker) loadOrCapture(header, first []string) map[string]float64 {
	baseline := make(map[string]float64)
	err := t.store.Load(enaBaselineFile, &baseline)
	if err == nil {
		return baseline
	}
	if !os.IsNotExist(err) {
		logger.Warnf("ena baseline unreadable, recapturing: %v", err)
	}

	row := newRowView(header, first)
	for _, name := range header {
		if strings.HasSuffix(name, enaExceededSuffix) {
			baseline[name] = row.first([]string{name})
		}
	}
	if err := t.store.Save(enaBaselineFile, baseline); err != nil {
		logger.Warnf("failed to persist ena baseline: %v", err)
	}
	return baseline
}

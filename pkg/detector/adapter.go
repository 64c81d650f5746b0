package detector

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"loadsentry/pkg/config"
	"loadsentry/pkg/logger"
)

// metric kinds resolved per device
const (
	kindUtil       = "util"
	kindLatency    = "latency"
	kindIOPS       = "iops"
	kindThroughput = "throughput"
)

// Adapter maps a flat metric-history row onto a MetricSnapshot. Device field
// names are not fixed; they are generated by the collector from the device
// name, so the candidate list per (device, kind) is built once from
// configuration and resolved against the actual header per read.
type Adapter struct {
	devices config.DevicesConfig

	scalar map[string][]string // canonical scalar -> header candidates
}

// NewAdapter builds the field candidate sets from device configuration.
func NewAdapter(devices config.DevicesConfig) *Adapter {
	return &Adapter{
		devices: devices,
		scalar: map[string][]string{
			"cpu":       {"cpu_pct", "cpu_usage_pct", "cpu"},
			"mem":       {"mem_pct", "mem_used_pct", "memory_pct"},
			"network":   {"network_util_pct", "net_util_pct"},
			"errorRate": {"error_rate_pct", "rpc_error_rate_pct"},
		},
	}
}

// Snapshot reads the most recent row of the metric history file and adapts it.
// Acquisition failure must never abort detection: a missing, empty or
// unmatched file yields a zeroed snapshot.
func (a *Adapter) Snapshot(path string) *MetricSnapshot {
	snap := &MetricSnapshot{}
	if a.devices.Secondary != nil {
		snap.Secondary = &DeviceMetrics{}
	}

	header, _, last, err := readMetricTable(path)
	if err != nil || len(last) == 0 {
		logger.Debugf("metric history unavailable (%s): %v", path, err)
		return snap
	}

	row := newRowView(header, last)
	snap.CPUPct = row.first(a.scalar["cpu"])
	snap.MemPct = row.first(a.scalar["mem"])
	snap.NetworkUtilPct = row.first(a.scalar["network"])
	snap.RPCErrorRatePct = row.first(a.scalar["errorRate"])

	snap.Primary = a.deviceMetrics(row, a.devices.Primary.Name)
	if a.devices.Secondary != nil {
		m := a.deviceMetrics(row, a.devices.Secondary.Name)
		snap.Secondary = &m
	}
	return snap
}

// deviceMetrics resolves one device's quantities. Read latency wins over the
// average-latency fallback: the fallback applies only when no read-latency
// field matched at all (first-match-wins, not last).
func (a *Adapter) deviceMetrics(row rowView, device string) DeviceMetrics {
	m := DeviceMetrics{
		UtilPct:                row.first(deviceCandidates(device, kindUtil)),
		StandardIOPS:           row.first(deviceCandidates(device, kindIOPS)),
		StandardThroughputMiBs: row.first(deviceCandidates(device, kindThroughput)),
	}

	if v, ok := row.lookup(readLatencyCandidates(device)); ok {
		m.AvgLatencyMs = v
	} else if v, ok := row.lookup(avgLatencyCandidates(device)); ok {
		m.AvgLatencyMs = v
	}
	return m
}

// deviceCandidates returns the header naming patterns for a (device, kind)
// pair, most specific first.
func deviceCandidates(device, kind string) []string {
	switch kind {
	case kindUtil:
		return []string{device + "_util_pct", device + "_util"}
	case kindIOPS:
		return []string{device + "_aws_std_iops", device + "_std_iops"}
	case kindThroughput:
		return []string{device + "_aws_std_tp_mibs", device + "_aws_std_throughput_mibs"}
	}
	return nil
}

func readLatencyCandidates(device string) []string {
	return []string{device + "_r_await_ms", device + "_r_await"}
}

func avgLatencyCandidates(device string) []string {
	return []string{device + "_await_ms", device + "_await"}
}

// rowView indexes one data row by header field name.
type rowView struct {
	index map[string]int
	row   []string
}

func newRowView(header, row []string) rowView {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	return rowView{index: index, row: row}
}

// lookup resolves the first candidate present in the header and parses its
// value. Unparseable values read as zero.
func (r rowView) lookup(candidates []string) (float64, bool) {
	for _, name := range candidates {
		i, ok := r.index[name]
		if !ok || i >= len(r.row) {
			continue
		}
		v, err := strconv.ParseFloat(r.row[i], 64)
		if err != nil {
			return 0, true
		}
		return v, true
	}
	return 0, false
}

func (r rowView) first(candidates []string) float64 {
	v, _ := r.lookup(candidates)
	return v
}

// readMetricTable scans the metric history file and returns its header, the
// first data row and the last data row. Rows with a deviating field count are
// tolerated (the collector appends while we read).
func readMetricTable(path string) (header, first, last []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err = reader.Read()
	if err != nil {
		return nil, nil, nil, err
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if first == nil {
			first = row
		}
		last = row
	}
	return header, first, last, nil
}

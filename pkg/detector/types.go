package detector

import (
	"time"

	"loadsentry/pkg/constants"
)

// Verdict status values
const (
	StatusInitialized = "initialized"
	StatusMonitoring  = "monitoring"
	StatusDetected    = "bottleneck_detected"
)

// Comparison selects how a measured value is compared against its threshold.
type Comparison int

const (
	CompareAbove Comparison = iota // breached when value > threshold
	CompareAboveOrEqual            // breached when value >= threshold
	CompareBelow                   // breached when value < threshold
)

// DeviceMetrics one device's view for a single tick
type DeviceMetrics struct {
	UtilPct                float64 `json:"utilPct"`
	AvgLatencyMs           float64 `json:"avgLatencyMs"`
	StandardIOPS           float64 `json:"standardIops"`
	StandardThroughputMiBs float64 `json:"standardThroughputMibs"`
}

// MetricSnapshot one tick's canonical view of the adapted metric row. Derived
// fresh every tick, never persisted.
type MetricSnapshot struct {
	CPUPct          float64        `json:"cpuPct"`
	MemPct          float64        `json:"memPct"`
	Primary         DeviceMetrics  `json:"primary"`
	Secondary       *DeviceMetrics `json:"secondary,omitempty"`
	NetworkUtilPct  float64        `json:"networkUtilPct"`
	RPCErrorRatePct float64        `json:"rpcErrorRatePct"`
}

// DeviceBaseline configured AWS ceilings for one device
type DeviceBaseline struct {
	Device         string  `json:"device"`
	IOPS           float64 `json:"iops,omitempty"`
	ThroughputMiBs float64 `json:"throughputMibs,omitempty"`
}

// Verdict is the engine's published output. It is overwritten wholesale every
// tick; the only state carried forward is the counter bank.
type Verdict struct {
	Status        string                    `json:"status"`
	Detected      bool                      `json:"detected"`
	Dimensions    []string                  `json:"triggeredDimensions"`
	Values        []string                  `json:"triggeredValues"`
	DetectionTime *time.Time                `json:"detectionTime,omitempty"`
	CurrentLoad   int                       `json:"currentLoad"`
	Snapshot      MetricSnapshot            `json:"snapshot"`
	Baselines     map[string]DeviceBaseline `json:"baselines"`
	Counters      map[string]int            `json:"counters"`
}

// Check is one dimension's measurement for the current tick, ready to be run
// through the hysteresis counter bank.
type Check struct {
	Dimension constants.Dimension
	Value     float64
	Threshold float64
	Compare   Comparison
	Display   string // human-readable value for the verdict, e.g. "15000/16000"
}

// DetectRequest one sampling tick's input
type DetectRequest struct {
	CurrentLoad int    `json:"currentLoad"`
	MetricFile  string `json:"metricFile"`
	ResultFile  string `json:"resultFile,omitempty"`
}

package detector

import (
	"fmt"

	"loadsentry/pkg/config"
	"loadsentry/pkg/constants"
)

// BaselineComparator converts observed AWS-standard IOPS/throughput into
// utilization ratios against the configured per-device ceilings. Devices
// without a configured ceiling are skipped entirely for that check, never
// treated as a zero-utilization pass.
type BaselineComparator struct {
	devices    config.DevicesConfig
	thresholds config.ThresholdsConfig
}

// NewBaselineComparator creates the comparator.
func NewBaselineComparator(devices config.DevicesConfig, thresholds config.ThresholdsConfig) *BaselineComparator {
	return &BaselineComparator{devices: devices, thresholds: thresholds}
}

// Checks builds the per-device dimension checks for one tick. Utilization and
// latency breaches are independent dimensions; IOPS and throughput each get
// their own counter so a device is bottlenecked when either triggers.
func (c *BaselineComparator) Checks(snap *MetricSnapshot) []Check {
	checks := c.deviceChecks(c.devices.Primary, snap.Primary, false)
	if c.devices.Secondary != nil && snap.Secondary != nil {
		checks = append(checks, c.deviceChecks(*c.devices.Secondary, *snap.Secondary, true)...)
	}
	return checks
}

func (c *BaselineComparator) deviceChecks(dev config.DeviceConfig, m DeviceMetrics, secondary bool) []Check {
	dim := func(d constants.Dimension) constants.Dimension {
		if secondary {
			return d.Secondary()
		}
		return d
	}

	checks := []Check{
		{
			Dimension: dim(constants.DimEBSUtil),
			Value:     m.UtilPct,
			Threshold: c.thresholds.DiskUtilPct,
			Compare:   CompareAbove,
			Display:   fmt.Sprintf("%.1f%%", m.UtilPct),
		},
		{
			Dimension: dim(constants.DimEBSLatency),
			Value:     m.AvgLatencyMs,
			Threshold: c.thresholds.DiskLatencyMs,
			Compare:   CompareAbove,
			Display:   fmt.Sprintf("%.2fms", m.AvgLatencyMs),
		},
	}

	if dev.BaselineIOPS > 0 {
		checks = append(checks, Check{
			Dimension: dim(constants.DimEBSAWSIOPS),
			Value:     m.StandardIOPS / dev.BaselineIOPS * 100,
			Threshold: c.thresholds.AWSBaselinePct,
			Compare:   CompareAboveOrEqual,
			Display:   fmt.Sprintf("%.0f/%.0f", m.StandardIOPS, dev.BaselineIOPS),
		})
	}
	if dev.BaselineThroughputMiBs > 0 {
		checks = append(checks, Check{
			Dimension: dim(constants.DimEBSAWSThroughput),
			Value:     m.StandardThroughputMiBs / dev.BaselineThroughputMiBs * 100,
			Threshold: c.thresholds.AWSBaselinePct,
			Compare:   CompareAboveOrEqual,
			Display:   fmt.Sprintf("%.0f/%.0f MiB/s", m.StandardThroughputMiBs, dev.BaselineThroughputMiBs),
		})
	}
	return checks
}

// Baselines returns the configured ceilings keyed by dimension keyspace, for
// inclusion in the published verdict.
func (c *BaselineComparator) Baselines() map[string]DeviceBaseline {
	out := map[string]DeviceBaseline{
		"EBS": {
			Device:         c.devices.Primary.Name,
			IOPS:           c.devices.Primary.BaselineIOPS,
			ThroughputMiBs: c.devices.Primary.BaselineThroughputMiBs,
		},
	}
	if c.devices.Secondary != nil {
		out["EBS2"] = DeviceBaseline{
			Device:         c.devices.Secondary.Name,
			IOPS:           c.devices.Secondary.BaselineIOPS,
			ThroughputMiBs: c.devices.Secondary.BaselineThroughputMiBs,
		}
	}
	return out
}

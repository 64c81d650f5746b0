package constants

import "strings"

// Dimension names a monitored bottleneck dimension. Each dimension owns one
// hysteresis counter; secondary-device dimensions use the EBS2_ keyspace so
// the two devices cannot interfere.
type Dimension string

const (
	DimCPU              Dimension = "CPU"
	DimMemory           Dimension = "MEMORY"
	DimEBSUtil          Dimension = "EBS_UTIL"
	DimEBSLatency       Dimension = "EBS_LATENCY"
	DimEBSAWSIOPS       Dimension = "EBS_AWS_IOPS"
	DimEBSAWSThroughput Dimension = "EBS_AWS_THROUGHPUT"
	DimNetwork          Dimension = "NETWORK"
	DimENALimit         Dimension = "ENA_LIMIT"
	DimErrorRate        Dimension = "ERROR_RATE"
	DimRPCLatency       Dimension = "RPC_LATENCY"
	DimRPCSuccessRate   Dimension = "RPC_SUCCESS_RATE"
	DimRPCConnection    Dimension = "RPC_CONNECTION"

	// DimNodeUnhealthy is a pseudo-dimension reported when the node-health
	// flag alone confirms a bottleneck; it has no hysteresis counter.
	DimNodeUnhealthy Dimension = "NODE_UNHEALTHY"
)

func (d Dimension) String() string {
	return string(d)
}

// Secondary returns the secondary-device counterpart of an EBS dimension.
// Non-device dimensions are returned unchanged.
func (d Dimension) Secondary() Dimension {
	if strings.HasPrefix(string(d), "EBS_") {
		return Dimension("EBS2_" + strings.TrimPrefix(string(d), "EBS_"))
	}
	return d
}

// IsRPCPerformance reports whether a dimension counts as a client-observed
// RPC degradation. An RPC-performance breach is the necessary condition for a
// confirmed bottleneck on a healthy node; everything else is resource-side.
func IsRPCPerformance(name string) bool {
	switch Dimension(name) {
	case DimErrorRate, DimRPCLatency, DimRPCSuccessRate, DimRPCConnection:
		return true
	}
	return false
}

// IsResource reports whether a dimension is a resource-side signal, i.e.
// subject to false-positive suppression when the node stays healthy.
func IsResource(name string) bool {
	return !IsRPCPerformance(name) && Dimension(name) != DimNodeUnhealthy
}

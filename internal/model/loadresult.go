package model

import "strings"

// LoadResult is the summary artifact the load generator writes after each
// ramp step. Latencies are reported in nanoseconds (the generator's native
// unit).
type LoadResult struct {
	Requests    int64            `json:"requests"`
	StatusCodes map[string]int64 `json:"status_codes"`
	Latencies   LatencySummary   `json:"latencies"`
}

// LatencySummary latency aggregates in nanoseconds
type LatencySummary struct {
	Mean int64 `json:"mean"`
	P50  int64 `json:"50th,omitempty"`
	P95  int64 `json:"95th,omitempty"`
	P99  int64 `json:"99th,omitempty"`
	Max  int64 `json:"max,omitempty"`
}

// Successful counts requests that completed with a 2xx status code.
func (r *LoadResult) Successful() int64 {
	var n int64
	for code, count := range r.StatusCodes {
		if strings.HasPrefix(code, "2") {
			n += count
		}
	}
	return n
}

// SuccessRatePct returns successful/total*100, or 100 when no requests were
// recorded (an empty step is not a failure signal).
func (r *LoadResult) SuccessRatePct() float64 {
	if r.Requests == 0 {
		return 100
	}
	return float64(r.Successful()) / float64(r.Requests) * 100
}

// MeanLatencyMs converts the reported mean latency to milliseconds.
func (r *LoadResult) MeanLatencyMs() float64 {
	return float64(r.Latencies.Mean) / 1e6
}

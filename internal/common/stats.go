package common

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// LatencyStats summarizes a set of call durations in seconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min_seconds"`
	Max   float64 `json:"max_seconds"`
	Mean  float64 `json:"mean_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
}

// ComputeLatencyStats returns the zero value for an empty input.
func ComputeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}
	secs := make([]float64, len(durations))
	var sum float64
	for i, d := range durations {
		secs[i] = d.Seconds()
		sum += secs[i]
	}
	sort.Float64s(secs)
	return LatencyStats{
		Count: len(secs),
		Min:   secs[0],
		Max:   secs[len(secs)-1],
		Mean:  sum / float64(len(secs)),
		P50:   percentile(secs, 50),
		P95:   percentile(secs, 95),
	}
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// String returns a one-line human readable summary.
func (s LatencyStats) String() string {
	if s.Count == 0 {
		return "no calls"
	}
	return fmt.Sprintf("%d calls, mean: %.3fs, p50: %.3fs, p95: %.3fs, min: %.3fs, max: %.3fs",
		s.Count, s.Mean, s.P50, s.P95, s.Min, s.Max)
}

// Package stats reduces a run's probe results into per-resolver
// statistics and a ranking. Every call recomputes from scratch so
// partial-progress reports and the final report cannot drift apart.
package stats

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/iaserrat/nsbench/internal/probe"
)

// UnmeasuredLatency marks latency fields for resolvers with zero
// successful probes. Zero is a valid latency, so absence needs its own
// value.
const UnmeasuredLatency = -1.0

// ResolverStat summarizes all probes against one resolver. Latency
// fields cover successful probes only.
type ResolverStat struct {
	Resolver    string  `json:"resolver"`
	Queries     int     `json:"queries"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
	AvgMs       float64 `json:"avg_ms"`
	MinMs       float64 `json:"min_ms"`
	MaxMs       float64 `json:"max_ms"`
	MedianMs    float64 `json:"median_ms"`
	Rank        int     `json:"rank"`
}

// Measured reports whether the latency fields hold real measurements.
func (s ResolverStat) Measured() bool { return s.Successes > 0 }

// Aggregate groups results by resolver and computes one ResolverStat
// per entry of order. Ranking is ascending by average latency; zero-
// success resolvers sort after every measured one, keeping their
// original list order.
func Aggregate(results []probe.ProbeResult, order []string) []ResolverStat {
	groups := make(map[string][]probe.ProbeResult, len(order))
	for _, r := range results {
		groups[r.Resolver] = append(groups[r.Resolver], r)
	}

	coarse := false
	for _, r := range results {
		if r.Precision == probe.PrecisionCoarse {
			coarse = true
			break
		}
	}

	out := make([]ResolverStat, 0, len(order))
	for _, resolver := range order {
		out = append(out, summarize(resolver, groups[resolver], coarse))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Measured() != out[j].Measured() {
			return out[i].Measured()
		}
		if !out[i].Measured() {
			return false
		}
		return out[i].AvgMs < out[j].AvgMs
	})

	for i := range out {
		out[i].Rank = i + 1
	}

	return out
}

func summarize(resolver string, results []probe.ProbeResult, coarse bool) ResolverStat {
	s := ResolverStat{
		Resolver: resolver,
		Queries:  len(results),
		AvgMs:    UnmeasuredLatency,
		MinMs:    UnmeasuredLatency,
		MaxMs:    UnmeasuredLatency,
		MedianMs: UnmeasuredLatency,
	}

	var latencies []float64
	for _, r := range results {
		if r.Success {
			s.Successes++
			latencies = append(latencies, r.LatencyMs)
		} else {
			s.Failures++
		}
	}

	if s.Queries > 0 {
		s.SuccessRate = round(float64(s.Successes)/float64(s.Queries)*100, false)
	}

	if len(latencies) == 0 {
		return s
	}

	avg, _ := stats.Mean(latencies)
	min, _ := stats.Min(latencies)
	max, _ := stats.Max(latencies)
	median, _ := stats.Median(latencies)

	s.AvgMs = round(avg, coarse)
	s.MinMs = round(min, coarse)
	s.MaxMs = round(max, coarse)
	s.MedianMs = round(median, coarse)

	return s
}

// round keeps one rounding granularity per run: whole milliseconds for
// coarse timing, two decimals for high-precision timing.
func round(v float64, coarse bool) float64 {
	if coarse {
		return math.Round(v)
	}
	return math.Round(v*100) / 100
}

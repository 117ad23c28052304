// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"
)

// WindowStats describes one stream. An empty window reports zero values and
// an empty distribution.
type WindowStats struct {
	Count                int            `json:"total_packets"`
	AvgSize              float64        `json:"avg_packet_size"`
	MaxSize              float64        `json:"max_packet_size"`
	MinSize              float64        `json:"min_packet_size"`
	StdSize              float64        `json:"std_packet_size"`
	Throughput           float64        `json:"throughput"`
	MovingAvgSize        float64        `json:"moving_avg_size"`
	ProtocolDistribution map[string]int `json:"protocol_distribution"`
}

// Statistics holds both streams.
type Statistics struct {
	Original  WindowStats `json:"original"`
	Optimized WindowStats `json:"optimized"`
}

// Latency summarizes inter-arrival gaps of the raw stream, in seconds.
type Latency struct {
	Samples int     `json:"samples"`
	Avg     float64 `json:"avg_latency"`
	Max     float64 `json:"max_latency"`
	Min     float64 `json:"min_latency"`
	P95     float64 `json:"p95_latency"`
	P99     float64 `json:"p99_latency"`
}

// Statistics computes descriptive statistics for both streams.
func (e *Engine) Statistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Statistics{
		Original:  e.raw.stats(),
		Optimized: e.optimized.stats(),
	}
}

func (w *window) stats() WindowStats {
	out := WindowStats{ProtocolDistribution: make(map[string]int, len(w.protocols))}
	for p, n := range w.protocols {
		out.ProtocolDistribution[p] = n
	}
	n := len(w.samples)
	if n == 0 {
		return out
	}

	sizes := make(stats.Float64Data, n)
	for i, s := range w.samples {
		sizes[i] = float64(s.size)
	}

	// The inputs are non-empty, so these cannot fail.
	out.Count = n
	out.AvgSize, _ = stats.Mean(sizes)
	out.MaxSize, _ = stats.Max(sizes)
	out.MinSize, _ = stats.Min(sizes)
	out.StdSize, _ = stats.StandardDeviationPopulation(sizes)
	out.MovingAvgSize, _ = stats.Mean(sizes[n-min(movingAverageWindow, n):])

	if n > 1 {
		elapsed := w.samples[n-1].at.Sub(w.samples[0].at).Seconds()
		if elapsed > 0 {
			total, _ := stats.Sum(sizes)
			out.Throughput = total / elapsed
		}
	}
	return out
}

// BandwidthUtilization returns total raw bytes per protocol label. A packet
// counts toward every label in its stack.
func (e *Engine) BandwidthUtilization() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]float64)
	for _, s := range e.raw.samples {
		for _, p := range s.protocols {
			out[p] += float64(s.size)
		}
	}
	return out
}

// LatencyMetrics treats consecutive raw arrival gaps as latency samples. It
// returns nil when fewer than two packets were recorded.
func (e *Engine) LatencyMetrics() *Latency {
	e.mu.RLock()
	samples := e.raw.samples
	if len(samples) < 2 {
		e.mu.RUnlock()
		return nil
	}
	gaps := make(stats.Float64Data, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		gaps[i-1] = samples[i].at.Sub(samples[i-1].at).Seconds()
	}
	e.mu.RUnlock()

	l := &Latency{Samples: len(gaps)}
	l.Avg, _ = stats.Mean(gaps)
	l.Max, _ = stats.Max(gaps)
	l.Min, _ = stats.Min(gaps)
	l.P95 = percentile(gaps, 95)
	l.P99 = percentile(gaps, 99)
	return l
}

// percentile interpolates linearly between the two closest ranks, so p95
// and p99 stay distinct on small windows.
func percentile(data stats.Float64Data, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := slices.Clone([]float64(data))
	slices.Sort(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter holds the Prometheus view of the pipeline.
type Exporter struct {
	// Stream metrics
	Packets      *prometheus.CounterVec
	Bytes        *prometheus.CounterVec
	PacketSize   *prometheus.HistogramVec
	Interarrival prometheus.Histogram

	// Cycle metrics
	CycleDuration  prometheus.Histogram
	StageErrors    *prometheus.CounterVec
	IngestDropped  prometheus.Counter
	Throttled      *prometheus.CounterVec
	RateDeferred   prometheus.Counter
	PendingPackets prometheus.Gauge
}

// NewExporter creates the collectors. Nothing is registered yet.
func NewExporter() *Exporter {
	return &Exporter{
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowshape_packets_total",
			Help: "Total number of packets recorded per protocol label and stream",
		}, []string{"protocol", "stream"}),

		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowshape_bytes_total",
			Help: "Total number of bytes recorded per protocol label and stream",
		}, []string{"protocol", "stream"}),

		PacketSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowshape_packet_size_bytes",
			Help:    "Distribution of recorded packet sizes",
			Buckets: []float64{64, 128, 256, 512, 1024, 1500, 4096, 9000},
		}, []string{"stream"}),

		Interarrival: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowshape_interarrival_seconds",
			Help:    "Gap between consecutive raw packets",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowshape_cycle_duration_seconds",
			Help:    "Wall time of one processing cycle",
			Buckets: prometheus.DefBuckets,
		}),

		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowshape_cycle_stage_errors_total",
			Help: "Total number of failed pipeline stages",
		}, []string{"stage"}),

		IngestDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowshape_ingest_dropped_total",
			Help: "Total number of packets dropped by the ingest buffer",
		}),

		Throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowshape_throttled_packets_total",
			Help: "Total number of packets flagged as throttled, per exceeded protocol",
		}, []string{"protocol"}),

		RateDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowshape_ratelimit_deferred_total",
			Help: "Total number of packets deferred by the per-source rate limiter",
		}),

		PendingPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowshape_ratelimit_pending",
			Help: "Number of packets waiting in rate limiter queues",
		}),
	}
}

func (x *Exporter) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		x.Packets, x.Bytes, x.PacketSize, x.Interarrival,
		x.CycleDuration, x.StageErrors, x.IngestDropped, x.Throttled,
		x.RateDeferred, x.PendingPackets,
	}
}

// Describe implements prometheus.Collector
func (x *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range x.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (x *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, c := range x.collectors() {
		c.Collect(ch)
	}
}

// Register registers the exporter with reg.
func (x *Exporter) Register(reg prometheus.Registerer) error {
	return reg.Register(x)
}

func (x *Exporter) observePacket(s Stream, protocols []string, size int) {
	stream := s.String()
	for _, p := range protocols {
		x.Packets.WithLabelValues(p, stream).Inc()
		x.Bytes.WithLabelValues(p, stream).Add(float64(size))
	}
	x.PacketSize.WithLabelValues(stream).Observe(float64(size))
}

func (x *Exporter) observeInterarrival(d time.Duration) {
	if d >= 0 {
		x.Interarrival.Observe(d.Seconds())
	}
}

// ObserveCycle records the duration of one cycle.
func (x *Exporter) ObserveCycle(d time.Duration) {
	x.CycleDuration.Observe(d.Seconds())
}

// StageFailed counts one failed stage.
func (x *Exporter) StageFailed(stage string) {
	x.StageErrors.WithLabelValues(stage).Inc()
}

// ThrottledPackets adds n throttled packets for protocol.
func (x *Exporter) ThrottledPackets(protocol string, n int) {
	x.Throttled.WithLabelValues(protocol).Add(float64(n))
}

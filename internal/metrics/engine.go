// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics keeps the rolling history of the raw and optimized packet
// streams and derives statistics, per-protocol bandwidth and inter-arrival
// latency from it on demand.
package metrics

import (
	"sync"
	"time"

	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/packet"
)

// Stream selects one of the two windows.
type Stream int

const (
	Raw Stream = iota
	Optimized
)

func (s Stream) String() string {
	switch s {
	case Raw:
		return "raw"
	case Optimized:
		return "optimized"
	default:
		return "unknown"
	}
}

// movingAverageWindow is the number of trailing samples in the moving average.
const movingAverageWindow = 50

// Options tunes an Engine.
type Options struct {
	// MaxSamples caps each window, evicting the oldest sample first.
	// Zero keeps every sample until Clear.
	MaxSamples int
	// Exporter, if set, mirrors every recorded packet into Prometheus.
	Exporter *Exporter
}

type sample struct {
	size      int
	at        time.Time
	protocols []string
}

// window is the append-only history of one stream.
type window struct {
	samples   []sample
	protocols map[string]int
	start     time.Time
}

func newWindow(now time.Time) *window {
	return &window{protocols: make(map[string]int), start: now}
}

func (w *window) add(s sample, max int) {
	if max > 0 && len(w.samples) >= max {
		evicted := w.samples[0]
		w.samples = w.samples[1:]
		for _, p := range evicted.protocols {
			if w.protocols[p]--; w.protocols[p] <= 0 {
				delete(w.protocols, p)
			}
		}
	}
	w.samples = append(w.samples, s)
	for _, p := range s.protocols {
		w.protocols[p]++
	}
}

// Engine owns both stream windows. It is safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	clock     clock.Clock
	opts      Options
	raw       *window
	optimized *window
}

// NewEngine creates an empty engine. A nil clock uses the system clock.
func NewEngine(clk clock.Clock, opts Options) *Engine {
	if clk == nil {
		clk = clock.Real
	}
	now := clk.Now()
	return &Engine{
		clock:     clk,
		opts:      opts,
		raw:       newWindow(now),
		optimized: newWindow(now),
	}
}

func (e *Engine) window(s Stream) *window {
	if s == Optimized {
		return e.optimized
	}
	return e.raw
}

// Record appends the packet's length, stamped with the current time, to the
// stream's window.
func (e *Engine) Record(r packet.Record, s Stream) {
	e.record(r, r.Length, s)
}

// RecordShaped records a shaped packet on the optimized stream, using its
// optimized length when one is attached.
func (e *Engine) RecordShaped(p packet.Shaped) {
	size := p.Length
	if p.OptimizedLength != nil {
		size = *p.OptimizedLength
	}
	e.record(p.Record, size, Optimized)
}

func (e *Engine) record(r packet.Record, size int, s Stream) {
	now := e.clock.Now()
	protocols := make([]string, len(r.Protocols))
	copy(protocols, r.Protocols)

	e.mu.Lock()
	w := e.window(s)
	var prev time.Time
	if n := len(w.samples); n > 0 {
		prev = w.samples[n-1].at
	}
	w.add(sample{size: size, at: now, protocols: protocols}, e.opts.MaxSamples)
	e.mu.Unlock()

	if e.opts.Exporter != nil {
		e.opts.Exporter.observePacket(s, protocols, size)
		if s == Raw && !prev.IsZero() {
			e.opts.Exporter.observeInterarrival(now.Sub(prev))
		}
	}
}

// Len returns the number of samples held for a stream.
func (e *Engine) Len(s Stream) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.window(s).samples)
}

// StartTime returns when the stream's window was last reset.
func (e *Engine) StartTime(s Stream) time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.window(s).start
}

// Clear empties both windows and restarts their start times.
func (e *Engine) Clear() {
	now := e.clock.Now()
	e.mu.Lock()
	e.raw = newWindow(now)
	e.optimized = newWindow(now)
	e.mu.Unlock()
}

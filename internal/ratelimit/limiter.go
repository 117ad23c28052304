// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ratelimit gates packets per source address with a single-token
// bucket and keeps a FIFO of deferred packets for every source.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/packet"
)

// Defaults used when the caller does not configure a rate or queue bound.
const (
	DefaultRate         = 10.0
	DefaultMaxPending   = 1000
	DefaultIdleEviction = 10 * time.Minute
)

// Config configures a Limiter.
type Config struct {
	// Rate is the default packets per second for sources without an override.
	Rate float64
	// Overrides sets a per-source rate.
	Overrides map[string]float64
	// MaxPending bounds each source queue; the oldest entry is dropped first.
	MaxPending int
}

// DefaultConfig returns the limiter defaults.
func DefaultConfig() Config {
	return Config{Rate: DefaultRate, MaxPending: DefaultMaxPending}
}

type sourceState struct {
	limiter  *rate.Limiter
	rate     float64
	lastSeen time.Time
	pending  []packet.Record
}

// Limiter holds the per-source bucket state. Entries are created on first use.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	clock   clock.Clock
	sources map[string]*sourceState
	dropped uint64
}

// New creates a Limiter. A nil clock uses the system clock.
func New(cfg Config, clk clock.Clock) *Limiter {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if clk == nil {
		clk = clock.Real
	}
	return &Limiter{
		cfg:     cfg,
		clock:   clk,
		sources: make(map[string]*sourceState),
	}
}

// RateFor returns the configured rate of source.
func (l *Limiter) RateFor(source string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rateFor(source)
}

func (l *Limiter) rateFor(source string) float64 {
	if r, ok := l.cfg.Overrides[source]; ok && r > 0 {
		return r
	}
	return l.cfg.Rate
}

// SetRate overrides the rate of one source.
func (l *Limiter) SetRate(source string, r float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.Overrides == nil {
		l.cfg.Overrides = make(map[string]float64)
	}
	l.cfg.Overrides[source] = r
}

// Admit reports whether source may send at now given targetRate packets per
// second. The bucket holds one token and refills continuously, so a send is
// allowed once targetRate*(now-lastSent) >= 1. A new source is allowed
// immediately. Denials do not consume anything.
func (l *Limiter) Admit(source string, now time.Time, targetRate float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admit(l.state(source, now), now, targetRate)
}

func (l *Limiter) state(source string, now time.Time) *sourceState {
	st, ok := l.sources[source]
	if !ok {
		st = &sourceState{}
		l.sources[source] = st
	}
	st.lastSeen = now
	return st
}

func (l *Limiter) admit(st *sourceState, now time.Time, targetRate float64) bool {
	if targetRate <= 0 {
		return false
	}
	if st.limiter == nil {
		st.limiter = rate.NewLimiter(rate.Limit(targetRate), 1)
		st.rate = targetRate
	} else if st.rate != targetRate {
		st.limiter.SetLimitAt(now, rate.Limit(targetRate))
		st.rate = targetRate
	}
	return st.limiter.AllowN(now, 1)
}

// Schedule runs one scheduling pass. Each source's pending queue is retried
// first, in FIFO order, stopping at that source's first denial; then every
// record of batch is admitted or appended to its source's queue. A source
// that still has a backlog queues new records behind it so per-source order
// is preserved. It returns the records admitted this pass and the number
// newly deferred.
func (l *Limiter) Schedule(batch []packet.Record) (admitted []packet.Record, deferred int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for source, st := range l.sources {
		if len(st.pending) == 0 {
			continue
		}
		r := l.rateFor(source)
		n := 0
		for n < len(st.pending) && l.admit(st, now, r) {
			admitted = append(admitted, st.pending[n])
			n++
		}
		if n > 0 {
			st.pending = append(st.pending[:0], st.pending[n:]...)
			st.lastSeen = now
		}
	}

	for _, rec := range batch {
		st := l.state(rec.Source, now)
		if len(st.pending) == 0 && l.admit(st, now, l.rateFor(rec.Source)) {
			admitted = append(admitted, rec)
			continue
		}
		if len(st.pending) >= l.cfg.MaxPending {
			st.pending = st.pending[1:]
			l.dropped++
		}
		st.pending = append(st.pending, rec)
		deferred++
	}
	return admitted, deferred
}

// Pending returns the queue length of source.
func (l *Limiter) Pending(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.sources[source]; ok {
		return len(st.pending)
	}
	return 0
}

// PendingTotal returns the number of deferred records across all sources.
func (l *Limiter) PendingTotal() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, st := range l.sources {
		total += len(st.pending)
	}
	return total
}

// Dropped returns how many deferred records were evicted by the queue bound.
func (l *Limiter) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Sources returns the number of tracked sources.
func (l *Limiter) Sources() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources)
}

// Prune evicts sources idle for longer than idle that have nothing queued.
// It returns the number removed.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.clock.Now().Add(-idle)
	removed := 0
	for source, st := range l.sources {
		if len(st.pending) == 0 && st.lastSeen.Before(cutoff) {
			delete(l.sources, source)
			removed++
		}
	}
	return removed
}

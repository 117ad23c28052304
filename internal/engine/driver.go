// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine runs the periodic shaping cycle: it drains the ingest
// buffer, pushes the batch through the staged pipeline, records both streams
// into the metrics engine and publishes a snapshot.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"grimm.is/flowshape/internal/analytics"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/metrics"
	"grimm.is/flowshape/internal/optimizer"
	"grimm.is/flowshape/internal/packet"
	"grimm.is/flowshape/internal/patterns"
	"grimm.is/flowshape/internal/qos"
	"grimm.is/flowshape/internal/ratelimit"
)

// Defaults for the cycle driver.
const (
	DefaultInterval = 2 * time.Second
	DefaultMaxBatch = 100
)

// Stage names.
const (
	StageRateLimit = "rate-limit"
	StageDedup     = "dedup"
	StageShape     = "shape"
	StageThrottle  = "throttle"
	StageEstimate  = "estimate"
	StagePatterns  = "patterns"
	StageRecord    = "record-optimized"
	StageAnalytics = "analytics"
)

// Config configures a Driver.
type Config struct {
	Interval time.Duration
	MaxBatch int
}

// DefaultConfig returns the driver defaults.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, MaxBatch: DefaultMaxBatch}
}

// Deps are the components a Driver wires together. Buffer, Policies and
// Metrics are required; the rest enable optional stages.
type Deps struct {
	Buffer    *Buffer
	Policies  *qos.Table
	Metrics   *metrics.Engine
	Limiter   *ratelimit.Limiter
	Estimator *optimizer.SizeEstimator
	Analyzer  *patterns.Analyzer
	Analytics *analytics.Collector
	Exporter  *metrics.Exporter
	Hub       *Hub
	Clock     clock.Clock
	Logger    *logging.Logger
}

// Driver owns the cycle loop.
type Driver struct {
	cfg      Config
	deps     Deps
	clock    clock.Clock
	logger   *logging.Logger
	pipeline *Pipeline

	mu     sync.RWMutex
	latest *Snapshot
	cycles uint64
}

// NewDriver builds the pipeline for the supplied components.
func NewDriver(cfg Config, deps Deps) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real
	}
	if deps.Logger == nil {
		deps.Logger = logging.WithComponent("engine")
	}
	if deps.Buffer == nil {
		deps.Buffer = NewBuffer(0)
	}
	if deps.Policies == nil {
		deps.Policies = qos.NewTable(deps.Clock)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewEngine(deps.Clock, metrics.Options{Exporter: deps.Exporter})
	}

	d := &Driver{
		cfg:    cfg,
		deps:   deps,
		clock:  deps.Clock,
		logger: deps.Logger,
	}
	d.pipeline = d.buildPipeline()
	return d
}

func (d *Driver) buildPipeline() *Pipeline {
	p := NewPipeline()
	if d.deps.Limiter != nil {
		p.AddStage(Stage{
			Name:        StageRateLimit,
			Description: "Admit packets through the per-source token bucket",
			Run:         d.rateLimit,
		})
	}
	p.AddStage(Stage{Name: StageDedup, Description: "Drop repeated and malformed records", Run: dedup})
	p.AddStage(Stage{Name: StageShape, Description: "Order by QoS priority", Run: shape})
	p.AddStage(Stage{Name: StageThrottle, Description: "Flag protocols over their bandwidth limit", Run: d.throttle})
	if d.deps.Estimator != nil {
		p.AddStage(Stage{
			Name:        StageEstimate,
			Description: "Attach optimized size estimates",
			Run:         d.estimate,
			Optional:    true,
		})
	}
	if d.deps.Analyzer != nil {
		p.AddStage(Stage{
			Name:        StagePatterns,
			Description: "Cluster packets into traffic patterns",
			Run:         d.analyze,
			Optional:    true,
		})
	}
	p.AddStage(Stage{Name: StageRecord, Description: "Record the optimized stream", Run: d.recordOptimized})
	if d.deps.Analytics != nil {
		p.AddStage(Stage{
			Name:        StageAnalytics,
			Description: "Fold the batch into analytics buckets",
			Run:         d.ingestAnalytics,
			Optional:    true,
		})
	}
	return p
}

// Pipeline returns the cycle pipeline.
func (d *Driver) Pipeline() *Pipeline {
	return d.pipeline
}

// Buffer returns the ingest buffer capture pushes into.
func (d *Driver) Buffer() *Buffer {
	return d.deps.Buffer
}

// Enqueue hands a captured record to the driver. It never blocks.
func (d *Driver) Enqueue(r packet.Record) {
	d.deps.Buffer.Push(r)
}

// Latest returns the most recent snapshot, or nil before the first cycle.
func (d *Driver) Latest() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

// Cycles returns the number of completed cycles.
func (d *Driver) Cycles() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cycles
}

// Run executes a cycle every interval until ctx is cancelled. A cycle already
// in progress when ctx is cancelled runs to completion.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Cycle driver started", "interval", d.cfg.Interval, "max_batch", d.cfg.MaxBatch, "stages", d.pipeline.Stages())
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Cycle driver stopped", "cycles", d.Cycles())
			return nil
		case <-ticker.C:
			d.RunCycle(context.WithoutCancel(ctx))
		}
	}
}

// RunCycle executes one drain-shape-emit cycle and returns its snapshot.
func (d *Driver) RunCycle(ctx context.Context) (*Snapshot, *CycleResult) {
	start := time.Now()

	raw, discarded := d.deps.Buffer.Drain(d.cfg.MaxBatch)
	if discarded > 0 {
		d.logger.Warn("Batch over capacity, discarding records", "discarded", discarded, "max_batch", d.cfg.MaxBatch)
	}
	for _, r := range raw {
		d.deps.Metrics.Record(r, metrics.Raw)
	}

	b := &Batch{Raw: raw, Policies: d.deps.Policies.View()}
	result, err := d.pipeline.Execute(ctx, b)
	if err != nil {
		d.logger.Warn("Cycle interrupted", "error", err)
	}
	for name, sr := range result.StageResults {
		if sr.Error != nil {
			d.logger.Warn("Pipeline stage failed", "stage", name, "error", sr.Error)
			if d.deps.Exporter != nil {
				d.deps.Exporter.StageFailed(name)
			}
		}
	}

	snap := d.snapshot(b, result, discarded)

	d.mu.Lock()
	d.cycles++
	snap.Cycle = d.cycles
	d.latest = snap
	d.mu.Unlock()

	if d.deps.Hub != nil {
		if _, skipped := d.deps.Hub.Publish(snap); skipped > 0 {
			d.logger.Debug("Snapshot skipped for slow subscribers", "subscribers", skipped)
		}
	}

	if d.deps.Exporter != nil {
		d.deps.Exporter.ObserveCycle(time.Since(start))
		if discarded > 0 {
			d.deps.Exporter.IngestDropped.Add(float64(discarded))
		}
		if d.deps.Limiter != nil {
			d.deps.Exporter.PendingPackets.Set(float64(d.deps.Limiter.PendingTotal()))
		}
	}
	return snap, result
}

func (d *Driver) snapshot(b *Batch, result *CycleResult, discarded int) *Snapshot {
	out := b.shaped()
	if len(out) > d.cfg.MaxBatch {
		out = out[:d.cfg.MaxBatch]
	}

	snap := &Snapshot{
		ID:          uuid.New(),
		Timestamp:   d.clock.Now(),
		Packets:     out,
		Aggregation: AggregateByProtocol(out),
		Statistics:  d.deps.Metrics.Statistics(),
		Throttled:   b.Exceeded,
		Deferred:    b.Deferred,
		Dropped:     discarded,
	}
	if !b.Patterns.Empty() {
		p := b.Patterns
		snap.Patterns = &p
	}
	if failed := result.Failed(); len(failed) > 0 {
		sort.Strings(failed)
		snap.Errors = failed
	}
	return snap
}

func (d *Driver) rateLimit(_ context.Context, b *Batch) error {
	admitted, deferred := d.deps.Limiter.Schedule(b.Raw)
	if admitted == nil {
		admitted = []packet.Record{}
	}
	b.Admitted = admitted
	b.Deferred = deferred
	if d.deps.Exporter != nil && deferred > 0 {
		d.deps.Exporter.RateDeferred.Add(float64(deferred))
	}
	return nil
}

func dedup(_ context.Context, b *Batch) error {
	b.Deduped = optimizer.Dedupe(b.input())
	return nil
}

func shape(_ context.Context, b *Batch) error {
	b.Shaped = optimizer.Shape(b.input(), b.Policies)
	return nil
}

func (d *Driver) throttle(_ context.Context, b *Batch) error {
	batch := b.shaped()
	b.Usage, b.Exceeded = optimizer.Throttle(batch, b.Policies)
	if d.deps.Exporter != nil {
		for _, proto := range b.Exceeded {
			n := 0
			for i := range batch {
				if batch[i].HasProtocol(proto) {
					n++
				}
			}
			d.deps.Exporter.ThrottledPackets(proto, n)
		}
	}
	return nil
}

func (d *Driver) estimate(_ context.Context, b *Batch) error {
	d.deps.Estimator.Annotate(b.shaped())
	return nil
}

func (d *Driver) analyze(_ context.Context, b *Batch) error {
	p, err := d.deps.Analyzer.Analyze(b.shaped())
	if err != nil {
		return err
	}
	b.Patterns = p
	return nil
}

func (d *Driver) recordOptimized(_ context.Context, b *Batch) error {
	for _, p := range b.shaped() {
		d.deps.Metrics.RecordShaped(p)
	}
	return nil
}

func (d *Driver) ingestAnalytics(_ context.Context, b *Batch) error {
	d.deps.Analytics.IngestBatch(b.shaped())
	return nil
}

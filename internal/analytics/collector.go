// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package analytics

import (
	"context"
	"sync"
	"time"

	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/packet"
)

// DefaultBucket is the summary granularity when none is configured.
const DefaultBucket = time.Minute

// Collector aggregates shaped packets into time-bucketed summaries in memory
// until they are flushed to the store.
type Collector struct {
	mu      sync.Mutex
	buckets map[key]*Summary
	store   *Store
	window  time.Duration
	clock   clock.Clock
	logger  *logging.Logger
}

type key struct {
	bucket int64
	proto  string
	src    string
}

// NewCollector creates a collector. A zero bucket uses DefaultBucket.
func NewCollector(store *Store, bucket time.Duration, clk clock.Clock, logger *logging.Logger) *Collector {
	if bucket < time.Second {
		bucket = DefaultBucket
	}
	if clk == nil {
		clk = clock.Real
	}
	if logger == nil {
		logger = logging.WithComponent("analytics")
	}
	return &Collector{
		buckets: make(map[key]*Summary),
		store:   store,
		window:  bucket,
		clock:   clk,
		logger:  logger,
	}
}

// Store returns the underlying store.
func (c *Collector) Store() *Store {
	return c.store
}

// Protocol is the label a packet is summarized under: its innermost layer.
func Protocol(r packet.Record) string {
	if len(r.Protocols) == 0 {
		return ""
	}
	return r.Protocols[len(r.Protocols)-1]
}

// IngestBatch folds one cycle's packets into the current buckets. Packets
// without a capture timestamp fall into the bucket of the current time.
func (c *Collector) IngestBatch(batch []packet.Shaped) {
	now := c.clock.Now()
	width := int64(c.window.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range batch {
		p := &batch[i]
		ts := p.Timestamp
		if ts.IsZero() {
			ts = now
		}
		unix := ts.Unix()
		bucketStart := unix - (unix % width)

		k := key{bucket: bucketStart, proto: Protocol(p.Record), src: p.Source}
		s, exists := c.buckets[k]
		if !exists {
			s = &Summary{
				BucketTime: time.Unix(bucketStart, 0),
				Protocol:   k.proto,
				Source:     k.src,
			}
			c.buckets[k] = s
		}
		s.Bytes += int64(p.Length)
		s.Packets++
		if p.Throttled {
			s.Throttled++
		}
	}
}

// Pending returns the number of buckets waiting to be flushed.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// Flush persists the aggregated buckets and clears them. On failure the
// buckets are merged back so nothing is lost.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	toFlush := make([]Summary, 0, len(c.buckets))
	for _, s := range c.buckets {
		toFlush = append(toFlush, *s)
	}
	c.buckets = make(map[key]*Summary)
	c.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}

	if err := c.store.RecordSummaries(ctx, toFlush); err != nil {
		c.restore(toFlush)
		return err
	}
	return nil
}

func (c *Collector) restore(summaries []Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range summaries {
		k := key{bucket: s.BucketTime.Unix(), proto: s.Protocol, src: s.Source}
		if cur, ok := c.buckets[k]; ok {
			cur.Bytes += s.Bytes
			cur.Packets += s.Packets
			cur.Throttled += s.Throttled
			continue
		}
		restored := s
		c.buckets[k] = &restored
	}
}

// Run flushes every interval and prunes buckets older than retention, until
// ctx is done. A final flush runs on the way out.
func (c *Collector) Run(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(context.Background()); err != nil {
				c.logger.Warn("Final analytics flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.logger.Warn("Analytics flush failed", "error", err)
				continue
			}
			if retention > 0 {
				removed, err := c.store.Cleanup(ctx, c.clock.Now().Add(-retention))
				if err != nil {
					c.logger.Warn("Analytics cleanup failed", "error", err)
				} else if removed > 0 {
					c.logger.Debug("Pruned analytics buckets", "rows", removed)
				}
			}
		}
	}
}

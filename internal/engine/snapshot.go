// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"time"

	"github.com/google/uuid"
	"grimm.is/flowshape/internal/metrics"
	"grimm.is/flowshape/internal/packet"
	"grimm.is/flowshape/internal/patterns"
)

// Aggregate is the per-protocol traffic of one snapshot.
type Aggregate struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// Snapshot is the output of one cycle.
type Snapshot struct {
	ID          uuid.UUID            `json:"id"`
	Cycle       uint64               `json:"cycle"`
	Timestamp   time.Time            `json:"timestamp"`
	Packets     []packet.Shaped      `json:"packets"`
	Aggregation map[string]Aggregate `json:"aggregation"`
	Statistics  metrics.Statistics   `json:"metrics"`
	Patterns    *patterns.Patterns   `json:"patterns,omitempty"`
	Throttled   []string             `json:"throttled_protocols,omitempty"`
	Deferred    int                  `json:"deferred"`
	Dropped     int                  `json:"dropped"`
	Errors      []string             `json:"stage_errors,omitempty"`
}

// AggregateByProtocol counts packets and bytes per protocol label. A packet counts
// toward every label of its stack.
func AggregateByProtocol(batch []packet.Shaped) map[string]Aggregate {
	out := make(map[string]Aggregate)
	for i := range batch {
		for _, proto := range batch[i].Protocols {
			a := out[proto]
			a.Count++
			a.TotalBytes += int64(batch[i].Length)
			out[proto] = a
		}
	}
	return out
}

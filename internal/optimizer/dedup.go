// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package optimizer implements the per-batch shaping stages: deduplication,
// priority ordering, bandwidth throttling and optimized-size estimation.
package optimizer

import "grimm.is/flowshape/internal/packet"

// Dedupe removes records sharing (source, destination, protocol stack) and
// keeps the first occurrence of each key in input order. Records without a
// key are dropped.
func Dedupe(batch []packet.Record) []packet.Record {
	seen := make(map[packet.Key]struct{}, len(batch))
	out := make([]packet.Record, 0, len(batch))
	for _, r := range batch {
		key, ok := r.Key()
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

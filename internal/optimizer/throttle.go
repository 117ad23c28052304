// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package optimizer

import (
	"sort"

	"grimm.is/flowshape/internal/packet"
	"grimm.is/flowshape/internal/qos"
)

// Usage is the per-protocol byte total of one batch.
type Usage map[string]int64

// BatchUsage sums packet lengths into every protocol label each packet carries.
func BatchUsage(batch []packet.Shaped) Usage {
	usage := make(Usage)
	for i := range batch {
		for _, proto := range batch[i].Protocols {
			usage[proto] += int64(batch[i].Length)
		}
	}
	return usage
}

// Throttle flags every packet that carries a protocol whose batch total
// exceeds its configured limit. Totals are computed over the whole batch
// before any packet is flagged, and do not carry over between batches.
// It returns the per-protocol usage and the protocols found over limit.
func Throttle(batch []packet.Shaped, policies qos.Lookup) (Usage, []string) {
	usage := BatchUsage(batch)

	over := make(map[string]bool)
	var exceeded []string
	for proto, total := range usage {
		if limit, ok := policies.Limit(proto); ok && total > limit {
			over[proto] = true
			exceeded = append(exceeded, proto)
		}
	}
	if len(over) == 0 {
		return usage, nil
	}
	sort.Strings(exceeded)

	for i := range batch {
		for _, proto := range batch[i].Protocols {
			if over[proto] {
				batch[i].Throttled = true
				break
			}
		}
	}
	return usage, exceeded
}

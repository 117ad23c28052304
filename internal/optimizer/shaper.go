// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package optimizer

import (
	"sort"

	"grimm.is/flowshape/internal/packet"
	"grimm.is/flowshape/internal/qos"
)

// PriorityOf returns the highest policy priority across the record's stack.
func PriorityOf(r packet.Record, policies qos.Lookup) int {
	best := 0
	for _, proto := range r.Protocols {
		if p := policies.Priority(proto); p > best {
			best = p
		}
	}
	return best
}

// Shape annotates each record with its priority and returns the batch ordered
// by priority, highest first. Equal priorities keep input order.
func Shape(batch []packet.Record, policies qos.Lookup) []packet.Shaped {
	out := make([]packet.Shaped, len(batch))
	for i, r := range batch {
		out[i] = packet.NewShaped(r)
		out[i].Priority = PriorityOf(r, policies)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// PriorityQueue buckets packets into per-priority FIFO queues and always
// drains the highest non-empty priority first. It is the queued alternative
// to Shape's one-shot sort; the cycle uses Shape. Not safe for concurrent use.
type PriorityQueue struct {
	buckets map[int][]packet.Shaped
	levels  []int // sorted descending
	size    int
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{buckets: make(map[int][]packet.Shaped)}
}

// Push appends p to the FIFO of its priority.
func (q *PriorityQueue) Push(p packet.Shaped) {
	if _, ok := q.buckets[p.Priority]; !ok {
		idx := sort.Search(len(q.levels), func(i int) bool { return q.levels[i] <= p.Priority })
		q.levels = append(q.levels, 0)
		copy(q.levels[idx+1:], q.levels[idx:])
		q.levels[idx] = p.Priority
	}
	q.buckets[p.Priority] = append(q.buckets[p.Priority], p)
	q.size++
}

// Pop removes the oldest packet of the highest priority.
func (q *PriorityQueue) Pop() (packet.Shaped, bool) {
	if q.size == 0 {
		return packet.Shaped{}, false
	}
	level := q.levels[0]
	bucket := q.buckets[level]
	p := bucket[0]
	if len(bucket) == 1 {
		delete(q.buckets, level)
		q.levels = q.levels[1:]
	} else {
		q.buckets[level] = bucket[1:]
	}
	q.size--
	return p, true
}

// Len returns the number of queued packets.
func (q *PriorityQueue) Len() int {
	return q.size
}

// Drain pops every packet in priority order.
func (q *PriorityQueue) Drain() []packet.Shaped {
	out := make([]packet.Shaped, 0, q.size)
	for {
		p, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

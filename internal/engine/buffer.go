// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"sync"

	"grimm.is/flowshape/internal/packet"
)

// DefaultBufferCapacity bounds the ingest buffer when no capacity is set.
const DefaultBufferCapacity = 10000

// Buffer is the ingest queue between capture and the cycle driver. Push
// never blocks: when the buffer is full the oldest record is discarded.
type Buffer struct {
	mu       sync.Mutex
	items    []packet.Record
	capacity int
	dropped  uint64
}

// NewBuffer creates a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{capacity: capacity}
}

// Push appends r.
func (b *Buffer) Push(r packet.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.capacity {
		b.items[0] = packet.Record{}
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, r)
}

// Drain removes everything buffered and returns the newest max records,
// oldest first. Older records beyond max are discarded and counted as
// dropped, matching Push. max <= 0 returns everything. The second result is
// the number discarded.
func (b *Buffer) Drain(max int) ([]packet.Record, int) {
	b.mu.Lock()
	items := b.items
	b.items = nil
	discarded := 0
	if max > 0 && len(items) > max {
		discarded = len(items) - max
		items = items[len(items)-max:]
		b.dropped += uint64(discarded)
	}
	b.mu.Unlock()
	return items, discarded
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns the total number of records discarded by the buffer.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

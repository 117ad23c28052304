// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"sync"
)

// DefaultSubscriberQueue is the per-subscriber backlog when none is set.
const DefaultSubscriberQueue = 8

// Hub fans snapshots out to subscribers. Publishing never blocks: a
// subscriber whose queue is full misses that snapshot.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	queueSize int
	dropped   uint64
}

// Subscription receives snapshots on C until Close.
type Subscription struct {
	C    <-chan *Snapshot
	ch   chan *Snapshot
	hub  *Hub
	once sync.Once
}

// NewHub creates a hub with the given per-subscriber queue size.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultSubscriberQueue
	}
	return &Hub{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan *Snapshot, h.queueSize)
	s := &Subscription{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Publish offers snap to every subscriber and reports how many received it
// and how many were skipped.
func (h *Hub) Publish(snap *Snapshot) (delivered, skipped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- snap:
			delivered++
		default:
			skipped++
		}
	}
	h.dropped += uint64(skipped)
	return delivered, skipped
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped in total.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// CloseAll closes every subscription.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

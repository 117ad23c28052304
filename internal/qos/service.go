// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"context"
	"sync"

	"grimm.is/flowshape/internal/logging"
)

type opKind int

const (
	opUpsert opKind = iota
	opDelete
)

type persistOp struct {
	kind   opKind
	policy Policy
}

// Service is the rule-management entry point. Mutations apply to the table
// synchronously; persistence runs on a single background worker so writes
// reach the store in call order without blocking the caller.
type Service struct {
	table  *Table
	store  Store
	logger *logging.Logger

	// writeMu keeps table order and persistence order identical.
	writeMu sync.Mutex

	ops    chan persistOp
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewService wraps table. store may be nil, in which case nothing is persisted.
func NewService(table *Table, store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.WithComponent("qos")
	}
	s := &Service{
		table:  table,
		store:  store,
		logger: logger,
		ops:    make(chan persistOp, 256),
	}
	s.wg.Add(1)
	go s.persistLoop()
	return s
}

// Table returns the live policy table.
func (s *Service) Table() *Table {
	return s.table
}

// Load replaces the table with the stored policies.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	policies, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	s.table.Replace(policies)
	s.logger.Info("Loaded QoS policies", "count", len(policies))
	return nil
}

// Seed applies policies whose protocol is not already present.
func (s *Service) Seed(policies []Policy) int {
	applied := 0
	for _, p := range policies {
		if _, ok := s.table.Get(p.Protocol); ok {
			continue
		}
		if _, err := s.SetPolicy(p.Protocol, p.Priority, p.BandwidthLimit); err != nil {
			s.logger.Warn("Skipping invalid seed policy", "protocol", p.Protocol, "error", err)
			continue
		}
		applied++
	}
	return applied
}

// GetAllPolicies returns every policy, highest priority first.
func (s *Service) GetAllPolicies() []Policy {
	return s.table.All()
}

// SetPolicy creates or replaces a policy.
func (s *Service) SetPolicy(protocol string, priority int, limit *int64) (Policy, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	p, err := s.table.Set(protocol, priority, limit)
	if err != nil {
		return Policy{}, err
	}
	s.logger.Info("Updated QoS policy", "protocol", protocol, "priority", priority, "bandwidth_limit", limitAttr(limit))
	s.enqueue(persistOp{kind: opUpsert, policy: p})
	return p, nil
}

// RemovePolicy deletes a policy. Unknown protocols return false and no error.
func (s *Service) RemovePolicy(protocol string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.table.Remove(protocol) {
		return false
	}
	s.logger.Info("Deleted QoS policy", "protocol", protocol)
	s.enqueue(persistOp{kind: opDelete, policy: Policy{Protocol: protocol}})
	return true
}

// Close stops the persistence worker after draining queued writes.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ops)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) enqueue(op persistOp) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ops <- op:
	default:
		s.logger.Warn("QoS persistence queue full, dropping write", "protocol", op.policy.Protocol)
	}
}

func (s *Service) persistLoop() {
	defer s.wg.Done()
	ctx := context.Background()
	for op := range s.ops {
		if s.store == nil {
			continue
		}
		var err error
		switch op.kind {
		case opUpsert:
			err = s.store.Upsert(ctx, op.policy)
		case opDelete:
			_, err = s.store.Delete(ctx, op.policy.Protocol)
		}
		if err != nil {
			s.logger.Error("Failed to persist QoS policy", "protocol", op.policy.Protocol, "error", err)
		}
	}
}

func limitAttr(l *int64) any {
	if l == nil {
		return "none"
	}
	return *l
}

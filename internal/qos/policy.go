// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package qos holds the per-protocol Quality-of-Service policy table read by
// every processed packet, and the rule-management service that keeps it in
// sync with durable storage.
package qos

import (
	"sort"
	"strings"
	"sync"
	"time"

	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/errors"
)

// Policy is the QoS policy of one protocol label. A nil BandwidthLimit means
// unlimited; the limit is in bytes per batch window.
type Policy struct {
	Protocol       string    `json:"protocol"`
	Priority       int       `json:"priority"`
	BandwidthLimit *int64    `json:"bandwidth_limit,omitempty"`
	LastApplied    time.Time `json:"last_applied"`
}

// Lookup is the read side of a policy table.
type Lookup interface {
	Priority(protocol string) int
	Limit(protocol string) (int64, bool)
}

// Table maps protocol labels to policies. Labels match case-sensitively.
type Table struct {
	mu       sync.RWMutex
	policies map[string]Policy
	clock    clock.Clock
}

// NewTable creates an empty table. A nil clock uses the system clock.
func NewTable(clk clock.Clock) *Table {
	if clk == nil {
		clk = clock.Real
	}
	return &Table{
		policies: make(map[string]Policy),
		clock:    clk,
	}
}

// Validate checks the fields a caller may set.
func Validate(protocol string, priority int, limit *int64) error {
	if strings.TrimSpace(protocol) == "" {
		return errors.New(errors.KindValidation, "protocol is required")
	}
	if priority < 0 {
		return errors.Attr(errors.Errorf(errors.KindValidation, "priority must be >= 0, got %d", priority), "protocol", protocol)
	}
	if limit != nil && *limit < 0 {
		return errors.Attr(errors.Errorf(errors.KindValidation, "bandwidth limit must be >= 0, got %d", *limit), "protocol", protocol)
	}
	return nil
}

// Set creates or replaces the policy for protocol.
func (t *Table) Set(protocol string, priority int, limit *int64) (Policy, error) {
	if err := Validate(protocol, priority, limit); err != nil {
		return Policy{}, err
	}
	p := Policy{
		Protocol:       protocol,
		Priority:       priority,
		BandwidthLimit: copyLimit(limit),
		LastApplied:    t.clock.Now(),
	}

	t.mu.Lock()
	t.policies[protocol] = p
	t.mu.Unlock()
	return p.clone(), nil
}

// Remove deletes the policy for protocol. Unknown protocols are a no-op.
func (t *Table) Remove(protocol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.policies[protocol]; !ok {
		return false
	}
	delete(t.policies, protocol)
	return true
}

// Get returns a copy of the policy for protocol.
func (t *Table) Get(protocol string) (Policy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.policies[protocol]
	return p.clone(), ok
}

// Priority returns the configured priority, 0 if absent.
func (t *Table) Priority(protocol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.policies[protocol].Priority
}

// Limit returns the configured bandwidth limit, if any.
func (t *Table) Limit(protocol string) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.policies[protocol]
	if !ok || p.BandwidthLimit == nil {
		return 0, false
	}
	return *p.BandwidthLimit, true
}

// All returns every policy ordered by priority (desc), then protocol.
func (t *Table) All() []Policy {
	t.mu.RLock()
	out := make([]Policy, 0, len(t.policies))
	for _, p := range t.policies {
		out = append(out, p.clone())
	}
	t.mu.RUnlock()

	sortPolicies(out)
	return out
}

// Len returns the number of policies.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.policies)
}

// Replace swaps the whole table contents. Invalid entries are skipped.
func (t *Table) Replace(policies []Policy) {
	next := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if Validate(p.Protocol, p.Priority, p.BandwidthLimit) != nil {
			continue
		}
		next[p.Protocol] = p.clone()
	}
	t.mu.Lock()
	t.policies = next
	t.mu.Unlock()
}

// View returns an immutable copy for one batch, so every packet of the batch
// sees the same policies even if rules change mid-cycle.
func (t *Table) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := make(View, len(t.policies))
	for k, p := range t.policies {
		v[k] = p.clone()
	}
	return v
}

// View is a point-in-time copy of a Table.
type View map[string]Policy

func (v View) Priority(protocol string) int {
	return v[protocol].Priority
}

func (v View) Limit(protocol string) (int64, bool) {
	p, ok := v[protocol]
	if !ok || p.BandwidthLimit == nil {
		return 0, false
	}
	return *p.BandwidthLimit, true
}

// Limit returns a pointer suitable for Policy.BandwidthLimit.
func Limit(n int64) *int64 {
	return &n
}

func (p Policy) clone() Policy {
	p.BandwidthLimit = copyLimit(p.BandwidthLimit)
	return p
}

func copyLimit(l *int64) *int64 {
	if l == nil {
		return nil
	}
	v := *l
	return &v
}

func sortPolicies(ps []Policy) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Priority != ps[j].Priority {
			return ps[i].Priority > ps[j].Priority
		}
		return ps[i].Protocol < ps[j].Protocol
	})
}

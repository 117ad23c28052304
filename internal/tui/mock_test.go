// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/qos"
)

// MockBackend implements Backend for testing purposes
type MockBackend struct {
	Current  *Current
	Snapshot *engine.Snapshot
	Rules    []qos.Policy
	Err      error

	Removed     []string
	ClearCalled bool
}

func (m *MockBackend) GetCurrent() (*Current, error) {
	return m.Current, m.Err
}

func (m *MockBackend) GetSnapshot() (*engine.Snapshot, error) {
	return m.Snapshot, m.Err
}

func (m *MockBackend) GetRules() ([]qos.Policy, error) {
	return m.Rules, m.Err
}

func (m *MockBackend) RemoveRule(protocol string) error {
	m.Removed = append(m.Removed, protocol)
	return m.Err
}

func (m *MockBackend) ClearMetrics() error {
	m.ClearCalled = true
	return m.Err
}

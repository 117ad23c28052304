// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/logging"
)

type memStore struct {
	mu       sync.Mutex
	policies map[string]Policy
	fail     bool
}

func newMemStore() *memStore {
	return &memStore{policies: make(map[string]Policy)}
}

func (m *memStore) List(ctx context.Context) ([]Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Policy
	for _, p := range m.policies {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) Upsert(ctx context.Context, p Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New(errors.KindUnavailable, "store down")
	}
	m.policies[p.Protocol] = p
	return nil
}

func (m *memStore) Delete(ctx context.Context, protocol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.policies[protocol]
	delete(m.policies, protocol)
	return ok, nil
}

func (m *memStore) has(protocol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.policies[protocol]
	return ok
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError})
}

func TestService_SetAndRemovePersist(t *testing.T) {
	store := newMemStore()
	svc := NewService(NewTable(nil), store, testLogger())
	defer svc.Close()

	_, err := svc.SetPolicy("TCP", 2, Limit(100))
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Table().Priority("TCP"), "table mutation is synchronous")

	assert.Eventually(t, func() bool { return store.has("TCP") }, time.Second, 5*time.Millisecond)

	assert.True(t, svc.RemovePolicy("TCP"))
	assert.Eventually(t, func() bool { return !store.has("TCP") }, time.Second, 5*time.Millisecond)

	assert.False(t, svc.RemovePolicy("SCTP"), "unknown protocol is a no-op")
}

func TestService_ConcurrentWritesMatchStore(t *testing.T) {
	store := newMemStore()
	svc := NewService(NewTable(nil), store, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(priority int) {
			defer wg.Done()
			if priority%7 == 0 {
				svc.RemovePolicy("TCP")
				return
			}
			_, err := svc.SetPolicy("TCP", priority, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	svc.Close()

	live, liveOK := svc.Table().Get("TCP")
	store.mu.Lock()
	stored, storedOK := store.policies["TCP"]
	store.mu.Unlock()
	require.Equal(t, liveOK, storedOK)
	if liveOK {
		assert.Equal(t, live.Priority, stored.Priority, "store holds the last write applied to the table")
	}
}

func TestService_StoreFailureDoesNotSurface(t *testing.T) {
	store := newMemStore()
	store.fail = true
	svc := NewService(NewTable(nil), store, testLogger())

	_, err := svc.SetPolicy("UDP", 1, nil)
	require.NoError(t, err)
	svc.Close()

	assert.Equal(t, 1, svc.Table().Priority("UDP"))
	assert.False(t, store.has("UDP"))
}

func TestService_LoadAndSeed(t *testing.T) {
	store := newMemStore()
	store.policies["TCP"] = Policy{Protocol: "TCP", Priority: 4}

	svc := NewService(NewTable(nil), store, testLogger())
	defer svc.Close()

	require.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, 4, svc.Table().Priority("TCP"))

	applied := svc.Seed([]Policy{
		{Protocol: "TCP", Priority: 1},
		{Protocol: "UDP", Priority: 1},
		{Protocol: "", Priority: 3},
	})
	assert.Equal(t, 1, applied)
	assert.Equal(t, 4, svc.Table().Priority("TCP"), "seed never overrides stored policy")
	assert.Equal(t, 1, svc.Table().Priority("UDP"))
}

func TestService_NilStore(t *testing.T) {
	svc := NewService(NewTable(nil), nil, testLogger())
	defer svc.Close()

	_, err := svc.SetPolicy("ICMP", 3, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Load(context.Background()))
	assert.Len(t, svc.GetAllPolicies(), 1)
}

func TestService_CloseIdempotent(t *testing.T) {
	svc := NewService(NewTable(nil), newMemStore(), testLogger())
	svc.Close()
	svc.Close()

	_, err := svc.SetPolicy("TCP", 1, nil)
	assert.NoError(t, err, "mutations after close still update the table")
}

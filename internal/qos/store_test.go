// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/flowshape/internal/state"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := state.Open(state.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStore_UpsertList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	applied := time.Unix(1700000000, 0)
	require.NoError(t, store.Upsert(ctx, Policy{Protocol: "UDP", Priority: 1, LastApplied: applied}))
	require.NoError(t, store.Upsert(ctx, Policy{Protocol: "TCP", Priority: 2, BandwidthLimit: Limit(1500)}))

	policies, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 2)

	assert.Equal(t, "TCP", policies[0].Protocol)
	require.NotNil(t, policies[0].BandwidthLimit)
	assert.Equal(t, int64(1500), *policies[0].BandwidthLimit)
	assert.Equal(t, "UDP", policies[1].Protocol)
	assert.Nil(t, policies[1].BandwidthLimit)
	assert.True(t, applied.Equal(policies[1].LastApplied))
}

func TestSQLiteStore_UpsertUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, Policy{Protocol: "TCP", Priority: 2}))
	require.NoError(t, store.Upsert(ctx, Policy{Protocol: "TCP", Priority: 9, BandwidthLimit: Limit(10)}))

	var rows int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM qos_rules_history`).Scan(&rows))
	assert.Equal(t, 1, rows)

	policies, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, 9, policies[0].Priority)
}

func TestSQLiteStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, Policy{Protocol: "TCP", Priority: 2}))

	removed, err := store.Delete(ctx, "TCP")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, "TCP")
	require.NoError(t, err)
	assert.False(t, removed)

	policies, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

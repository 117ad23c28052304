// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/errors"
)

func TestTable_SetGetRemove(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	table := NewTable(clk)

	p, err := table.Set("TCP", 2, Limit(100))
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), p.LastApplied)

	assert.Equal(t, 2, table.Priority("TCP"))
	assert.Equal(t, 0, table.Priority("tcp"), "labels are case-sensitive")
	assert.Equal(t, 0, table.Priority("UDP"), "absent label defaults to 0")

	limit, ok := table.Limit("TCP")
	assert.True(t, ok)
	assert.Equal(t, int64(100), limit)

	_, ok = table.Limit("UDP")
	assert.False(t, ok)

	assert.True(t, table.Remove("TCP"))
	assert.False(t, table.Remove("TCP"), "second removal is a no-op")
	assert.Equal(t, 0, table.Len())
}

func TestTable_Validation(t *testing.T) {
	table := NewTable(nil)

	tests := []struct {
		name     string
		protocol string
		priority int
		limit    *int64
	}{
		{"empty protocol", "", 1, nil},
		{"blank protocol", "   ", 1, nil},
		{"negative priority", "TCP", -1, nil},
		{"negative limit", "TCP", 1, Limit(-5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Set(tt.protocol, tt.priority, tt.limit)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindValidation))
		})
	}
	assert.Equal(t, 0, table.Len())
}

func TestTable_CopiesLimit(t *testing.T) {
	table := NewTable(nil)
	limit := Limit(10)
	_, err := table.Set("UDP", 1, limit)
	require.NoError(t, err)

	*limit = 999
	got, _ := table.Limit("UDP")
	assert.Equal(t, int64(10), got, "caller mutation must not leak into the table")

	p, _ := table.Get("UDP")
	*p.BandwidthLimit = 1
	got, _ = table.Limit("UDP")
	assert.Equal(t, int64(10), got, "returned copies must not alias the table")
}

func TestTable_AllOrdering(t *testing.T) {
	table := NewTable(nil)
	table.Set("UDP", 1, nil)
	table.Set("TCP", 2, nil)
	table.Set("DNS", 2, nil)

	all := table.All()
	require.Len(t, all, 3)
	assert.Equal(t, "DNS", all[0].Protocol)
	assert.Equal(t, "TCP", all[1].Protocol)
	assert.Equal(t, "UDP", all[2].Protocol)
}

func TestTable_View(t *testing.T) {
	table := NewTable(nil)
	table.Set("TCP", 2, Limit(100))

	view := table.View()
	table.Set("TCP", 7, nil)

	assert.Equal(t, 2, view.Priority("TCP"), "view is isolated from later mutation")
	l, ok := view.Limit("TCP")
	assert.True(t, ok)
	assert.Equal(t, int64(100), l)
	assert.Equal(t, 7, table.Priority("TCP"))
}

func TestTable_Replace(t *testing.T) {
	table := NewTable(nil)
	table.Set("ICMP", 5, nil)

	table.Replace([]Policy{
		{Protocol: "TCP", Priority: 2},
		{Protocol: "", Priority: 1},
	})
	assert.Equal(t, 1, table.Len())
	_, ok := table.Get("ICMP")
	assert.False(t, ok)
}

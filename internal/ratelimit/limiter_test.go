// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/packet"
)

var start = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestAdmit_Basic(t *testing.T) {
	l := New(DefaultConfig(), clock.NewMockClock(start))

	assert.True(t, l.Admit("10.0.0.1", start, 10), "first packet of a new source is allowed")
	assert.False(t, l.Admit("10.0.0.1", start.Add(50*time.Millisecond), 10))
	assert.True(t, l.Admit("10.0.0.1", start.Add(100*time.Millisecond), 10))

	assert.True(t, l.Admit("10.0.0.2", start.Add(100*time.Millisecond), 10), "sources are independent")
}

func TestAdmit_DenialDoesNotConsume(t *testing.T) {
	l := New(DefaultConfig(), nil)

	require.True(t, l.Admit("s", start, 1))
	for i := 1; i < 10; i++ {
		assert.False(t, l.Admit("s", start.Add(time.Duration(i)*90*time.Millisecond), 1))
	}
	assert.True(t, l.Admit("s", start.Add(time.Second), 1))
}

func TestAdmit_NoBurstAccumulation(t *testing.T) {
	l := New(DefaultConfig(), nil)

	require.True(t, l.Admit("s", start, 10))
	later := start.Add(time.Hour)
	assert.True(t, l.Admit("s", later, 10))
	assert.False(t, l.Admit("s", later, 10), "a long idle period still yields one token")
}

func TestAdmit_NonPositiveRate(t *testing.T) {
	l := New(DefaultConfig(), nil)
	assert.False(t, l.Admit("s", start, 0))
	assert.False(t, l.Admit("s", start, -1))
}

func TestAdmit_Conservation(t *testing.T) {
	tests := []struct {
		name   string
		rate   float64
		step   time.Duration
		period time.Duration
	}{
		{"10pps polled at 1ms", 10, time.Millisecond, 60 * time.Second},
		{"3pps polled at 7ms", 3, 7 * time.Millisecond, 100 * time.Second},
		{"250pps polled at 1ms", 250, time.Millisecond, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(DefaultConfig(), nil)
			allowed := 0
			for now := start; now.Before(start.Add(tt.period)); now = now.Add(tt.step) {
				if l.Admit("src", now, tt.rate) {
					allowed++
				}
			}
			expected := tt.rate * tt.period.Seconds()
			// Polling granularity can delay each admit by at most one step.
			slack := expected*float64(tt.step)*tt.rate/float64(time.Second) + 2
			assert.InDelta(t, expected, float64(allowed), slack)
		})
	}
}

func TestAdmit_RateChange(t *testing.T) {
	l := New(DefaultConfig(), nil)
	require.True(t, l.Admit("s", start, 1))
	assert.False(t, l.Admit("s", start.Add(200*time.Millisecond), 1))
	assert.False(t, l.Admit("s", start.Add(200*time.Millisecond), 100), "accrued tokens are kept across a rate change")
	assert.True(t, l.Admit("s", start.Add(210*time.Millisecond), 100), "the new rate refills from then on")
}

func recFrom(src string, n int) packet.Record {
	return packet.Record{Source: src, Destination: "dst", Protocols: []string{"IPv4"}, Length: n}
}

func TestSchedule_DefersAndRetriesFIFO(t *testing.T) {
	clk := clock.NewMockClock(start)
	l := New(Config{Rate: 1, MaxPending: 10}, clk)

	admitted, deferred := l.Schedule([]packet.Record{
		recFrom("a", 1), recFrom("a", 2), recFrom("a", 3), recFrom("b", 4),
	})
	require.Len(t, admitted, 2)
	assert.Equal(t, 1, admitted[0].Length)
	assert.Equal(t, 4, admitted[1].Length)
	assert.Equal(t, 2, deferred)
	assert.Equal(t, 2, l.Pending("a"))

	clk.Advance(time.Second)
	admitted, deferred = l.Schedule([]packet.Record{recFrom("a", 5)})
	require.Len(t, admitted, 1)
	assert.Equal(t, 2, admitted[0].Length, "oldest pending goes first")
	assert.Equal(t, 1, deferred, "new record waits behind the backlog")
	assert.Equal(t, 2, l.Pending("a"))

	clk.Advance(time.Second)
	admitted, _ = l.Schedule(nil)
	require.Len(t, admitted, 1)
	assert.Equal(t, 3, admitted[0].Length)

	clk.Advance(time.Second)
	admitted, _ = l.Schedule(nil)
	require.Len(t, admitted, 1)
	assert.Equal(t, 5, admitted[0].Length)
	assert.Equal(t, 0, l.PendingTotal())
}

func TestSchedule_Overrides(t *testing.T) {
	l := New(Config{Rate: 1, Overrides: map[string]float64{"fast": 1000}}, clock.NewMockClock(start))
	assert.Equal(t, 1000.0, l.RateFor("fast"))
	assert.Equal(t, 1.0, l.RateFor("slow"))

	l.SetRate("slow", 5)
	assert.Equal(t, 5.0, l.RateFor("slow"))
}

func TestSchedule_BoundedQueue(t *testing.T) {
	l := New(Config{Rate: 1, MaxPending: 3}, clock.NewMockClock(start))

	var batch []packet.Record
	for i := 0; i < 6; i++ {
		batch = append(batch, recFrom("a", i))
	}
	admitted, deferred := l.Schedule(batch)
	assert.Len(t, admitted, 1)
	assert.Equal(t, 5, deferred)
	assert.Equal(t, 3, l.Pending("a"))
	assert.Equal(t, uint64(2), l.Dropped())
}

func TestPrune(t *testing.T) {
	clk := clock.NewMockClock(start)
	l := New(Config{Rate: 1}, clk)

	l.Schedule([]packet.Record{recFrom("idle", 1), recFrom("busy", 1), recFrom("busy", 2)})
	require.Equal(t, 2, l.Sources())

	clk.Advance(time.Hour)
	removed := l.Prune(DefaultIdleEviction)
	assert.Equal(t, 1, removed, "sources with a backlog are kept")
	assert.Equal(t, 1, l.Sources())
	assert.Equal(t, 1, l.Pending("busy"))
}

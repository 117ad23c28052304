// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/flowshape/internal/api"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/metrics"
	"grimm.is/flowshape/internal/packet"
	"grimm.is/flowshape/internal/qos"
)

type latestSnapshot struct{ snap *engine.Snapshot }

func (l *latestSnapshot) Latest() *engine.Snapshot { return l.snap }

func TestRemoteBackend(t *testing.T) {
	rules := qos.NewService(qos.NewTable(nil), nil, nil)
	defer rules.Close()
	_, err := rules.SetPolicy("TCP", 5, qos.Limit(1000))
	require.NoError(t, err)

	m := metrics.NewEngine(nil, metrics.Options{})
	m.Record(packet.Record{Protocols: []string{"UDP"}, Length: 64}, metrics.Raw)
	snaps := &latestSnapshot{}

	s, err := api.NewServer(api.ServerOptions{
		Rules:     rules,
		Metrics:   m,
		Snapshots: snaps,
		Logger:    logging.New(logging.Config{Level: logging.LevelError}),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	b := NewRemoteBackend(srv.URL + "/")

	cur, err := b.GetCurrent()
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Statistics.Original.Count)
	assert.EqualValues(t, 64, cur.BandwidthUtilization["UDP"])
	require.NotNil(t, cur.LatencyMetrics)
	assert.Zero(t, cur.LatencyMetrics.Samples, "empty latency object")

	snap, err := b.GetSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)

	snaps.snap = &engine.Snapshot{Cycle: 4}
	snap, err = b.GetSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), snap.Cycle)

	got, err := b.GetRules()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1000), *got[0].BandwidthLimit)

	require.NoError(t, b.RemoveRule("TCP"))
	assert.Zero(t, rules.Table().Len())

	require.NoError(t, b.ClearMetrics())
	assert.Zero(t, m.Statistics().Original.Count)
}

func TestRemoteBackend_Unreachable(t *testing.T) {
	b := NewRemoteBackend("127.0.0.1:1")
	_, err := b.GetCurrent()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnavailable))
}

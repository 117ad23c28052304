// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/flowshape/internal/analytics"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/metrics"
	"grimm.is/flowshape/internal/packet"
	"grimm.is/flowshape/internal/qos"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedSnapshots struct{ snap *engine.Snapshot }

func (f *fixedSnapshots) Latest() *engine.Snapshot { return f.snap }

type fakeHistory struct {
	protocol string
	from, to time.Time
	limit    int
}

func (f *fakeHistory) GetBandwidthUsage(_ context.Context, protocol string, from, to time.Time) ([]analytics.BandwidthPoint, error) {
	f.protocol, f.from, f.to = protocol, from, to
	return []analytics.BandwidthPoint{{Time: from, Bytes: 1200}}, nil
}

func (f *fakeHistory) GetTopTalkers(_ context.Context, from, to time.Time, limit int) ([]analytics.Summary, error) {
	f.limit = limit
	return []analytics.Summary{{BucketTime: from, Protocol: "TCP", Source: "10.0.0.1", Bytes: 900, Packets: 3}}, nil
}

type fixture struct {
	server    *Server
	rules     *qos.Service
	metrics   *metrics.Engine
	clock     *clock.MockClock
	snapshots *fixedSnapshots
	history   *fakeHistory
	hub       *engine.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMockClock(epoch)
	rules := qos.NewService(qos.NewTable(clk), nil, nil)
	t.Cleanup(rules.Close)

	f := &fixture{
		rules:     rules,
		metrics:   metrics.NewEngine(clk, metrics.Options{}),
		clock:     clk,
		snapshots: &fixedSnapshots{},
		history:   &fakeHistory{},
		hub:       engine.NewHub(4),
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "flowshape_test_total", Help: "test"}))

	s, err := NewServer(ServerOptions{
		Rules:     rules,
		Metrics:   f.metrics,
		Snapshots: f.snapshots,
		History:   f.history,
		Hub:       f.hub,
		Gatherer:  reg,
		Logger:    logging.New(logging.Config{Level: logging.LevelError}),
	})
	require.NoError(t, err)
	f.server = s
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(ServerOptions{})
	assert.Error(t, err)
}

func TestRules(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/qos/rules", `{"protocol":"TCP","priority":5,"bandwidth_limit":1000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	rule := body["rule"].(map[string]any)
	assert.Equal(t, "TCP", rule["protocol"])
	assert.EqualValues(t, 1000, rule["bandwidth_limit"])

	p, ok := f.rules.Table().Get("TCP")
	require.True(t, ok)
	assert.Equal(t, 5, p.Priority)

	w = f.do(t, http.MethodGet, "/api/qos/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	rules := decode(t, w)["rules"].([]any)
	require.Len(t, rules, 1)

	w = f.do(t, http.MethodDelete, "/api/qos/rules/TCP", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["removed"])

	w = f.do(t, http.MethodDelete, "/api/qos/rules/TCP", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["removed"], "removing an unknown protocol is not an error")
}

func TestRules_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		kind string
	}{
		{"negative priority", `{"protocol":"TCP","priority":-1}`, "validation"},
		{"missing protocol", `{"priority":1}`, "validation"},
		{"negative limit", `{"protocol":"UDP","priority":1,"bandwidth_limit":-5}`, "validation"},
		{"unknown field", `{"protocol":"UDP","priority":1,"weight":3}`, ""},
		{"malformed", `{"protocol":`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/qos/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.NotEmpty(t, body["error"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			}
		})
	}
	assert.Zero(t, f.rules.Table().Len())
}

func TestMetrics_Current(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/metrics/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, map[string]any{}, body["latency_metrics"], "no latency before two samples")

	for i, size := range []int{100, 200, 300} {
		if i > 0 {
			f.clock.Advance(time.Second)
		}
		f.metrics.Record(packet.Record{Protocols: []string{"IPv4", "TCP"}, Length: size}, metrics.Raw)
	}

	body = decode(t, f.do(t, http.MethodGet, "/api/metrics/current", ""))
	orig := body["statistics"].(map[string]any)["original"].(map[string]any)
	assert.EqualValues(t, 3, orig["total_packets"])
	assert.EqualValues(t, 200, orig["avg_packet_size"])

	latency := body["latency_metrics"].(map[string]any)
	assert.InDelta(t, 1.0, latency["avg_latency"], 1e-9)

	bw := decode(t, f.do(t, http.MethodGet, "/api/metrics/bandwidth", ""))
	assert.EqualValues(t, 600, bw["TCP"])

	lat := decode(t, f.do(t, http.MethodGet, "/api/metrics/latency", ""))
	assert.EqualValues(t, 2, lat["samples"])
}

func TestMetrics_Clear(t *testing.T) {
	f := newFixture(t)
	f.metrics.Record(packet.Record{Protocols: []string{"UDP"}, Length: 64}, metrics.Raw)

	w := f.do(t, http.MethodPost, "/api/metrics/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
	assert.Equal(t, 0, f.metrics.Statistics().Original.Count)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/snapshot", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.snapshots.snap = &engine.Snapshot{ID: uuid.New(), Cycle: 7, Timestamp: epoch}
	w = f.do(t, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7, decode(t, w)["cycle"])
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t)

	from := epoch.Add(-30 * time.Minute).Format(time.RFC3339)
	to := epoch.Format(time.RFC3339)
	w := f.do(t, http.MethodGet, "/api/analytics/bandwidth?protocol=UDP&from="+from+"&to="+to, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "UDP", f.history.protocol)
	assert.True(t, f.history.to.Equal(epoch))
	assert.Len(t, decode(t, w)["points"], 1)

	w = f.do(t, http.MethodGet, "/api/analytics/bandwidth?from="+to+"&to="+from, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "inverted range")

	w = f.do(t, http.MethodGet, "/api/analytics/bandwidth?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/analytics/top?limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, f.history.limit)

	w = f.do(t, http.MethodGet, "/api/analytics/top?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalytics_Disabled(t *testing.T) {
	s, err := NewServer(ServerOptions{
		Rules:   qos.NewService(qos.NewTable(nil), nil, nil),
		Metrics: metrics.NewEngine(nil, metrics.Options{}),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analytics/bandwidth", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/traffic", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "no hub, no stream")
}

func TestPrometheusAndHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flowshape_test_total")

	w = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrNotFound, decode(t, w)["error"])
}

func TestMaxBody(t *testing.T) {
	f := newFixture(t)
	f.server.cfg.MaxBodyBytes = 16

	w := f.do(t, http.MethodPost, "/api/qos/rules", `{"protocol":"TCP","priority":5}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestTrafficStream(t *testing.T) {
	f := newFixture(t)
	f.snapshots.snap = &engine.Snapshot{ID: uuid.New(), Cycle: 1, Timestamp: epoch}

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/traffic"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first engine.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(1), first.Cycle, "latest snapshot is sent on connect")

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.hub.Publish(&engine.Snapshot{ID: uuid.New(), Cycle: 2, Timestamp: epoch})

	var next engine.Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, uint64(2), next.Cycle)

	conn.Close()
	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond,
		"closing the client unsubscribes")
}

func TestServe_Shutdown(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.server.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"grimm.is/flowshape/internal/analytics"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/metrics"
)

// MetricsSource is the reporting surface of the metrics engine.
type MetricsSource interface {
	Statistics() metrics.Statistics
	BandwidthUtilization() map[string]float64
	LatencyMetrics() *metrics.Latency
	Clear()
}

// SnapshotSource returns the most recent cycle output.
type SnapshotSource interface {
	Latest() *engine.Snapshot
}

// HistorySource queries the analytics history.
type HistorySource interface {
	GetBandwidthUsage(ctx context.Context, protocol string, from, to time.Time) ([]analytics.BandwidthPoint, error)
	GetTopTalkers(ctx context.Context, from, to time.Time, limit int) ([]analytics.Summary, error)
}

// CurrentMetrics is the body of GET /api/metrics/current.
type CurrentMetrics struct {
	Statistics           metrics.Statistics `json:"statistics"`
	BandwidthUtilization map[string]float64 `json:"bandwidth_utilization"`
	LatencyMetrics       any                `json:"latency_metrics"`
}

// MetricsHandlers serves the reporting endpoints.
type MetricsHandlers struct {
	metrics   MetricsSource
	snapshots SnapshotSource
	history   HistorySource
}

// NewMetricsHandlers creates the reporting handlers. snapshots and history
// may be nil.
func NewMetricsHandlers(m MetricsSource, snapshots SnapshotSource, history HistorySource) *MetricsHandlers {
	return &MetricsHandlers{metrics: m, snapshots: snapshots, history: history}
}

// RegisterRoutes registers the reporting routes on router.
func (h *MetricsHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/metrics/current", h.handleCurrent).Methods(http.MethodGet)
	router.HandleFunc("/metrics/clear", h.handleClear).Methods(http.MethodPost)
	router.HandleFunc("/metrics/bandwidth", h.handleBandwidth).Methods(http.MethodGet)
	router.HandleFunc("/metrics/latency", h.handleLatency).Methods(http.MethodGet)
	router.HandleFunc("/snapshot", h.handleSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/analytics/bandwidth", h.handleHistoryBandwidth).Methods(http.MethodGet)
	router.HandleFunc("/analytics/top", h.handleTopTalkers).Methods(http.MethodGet)
}

// latency renders a missing latency summary as an empty object.
func latency(l *metrics.Latency) any {
	if l == nil {
		return struct{}{}
	}
	return l
}

func (h *MetricsHandlers) handleCurrent(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, CurrentMetrics{
		Statistics:           h.metrics.Statistics(),
		BandwidthUtilization: h.metrics.BandwidthUtilization(),
		LatencyMetrics:       latency(h.metrics.LatencyMetrics()),
	})
}

func (h *MetricsHandlers) handleClear(w http.ResponseWriter, r *http.Request) {
	h.metrics.Clear()
	WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *MetricsHandlers) handleBandwidth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.metrics.BandwidthUtilization())
}

func (h *MetricsHandlers) handleLatency(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, latency(h.metrics.LatencyMetrics()))
}

func (h *MetricsHandlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap *engine.Snapshot
	if h.snapshots != nil {
		snap = h.snapshots.Latest()
	}
	if snap == nil {
		WriteError(w, http.StatusNotFound, ErrNoSnapshot)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// timeRange reads from/to (RFC 3339) with a default of the last hour.
func timeRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	to := time.Now()
	from := to.Add(-time.Hour)
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, errors.Attr(errors.Wrap(err, errors.KindValidation, "invalid to"), "value", v)
		}
		to = t
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, errors.Attr(errors.Wrap(err, errors.KindValidation, "invalid from"), "value", v)
		}
		from = t
	}
	if from.After(to) {
		return from, to, errors.New(errors.KindValidation, "from is after to")
	}
	return from, to, nil
}

func (h *MetricsHandlers) handleHistoryBandwidth(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrNoAnalytics)
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		WriteErr(w, err)
		return
	}
	points, err := h.history.GetBandwidthUsage(r.Context(), r.URL.Query().Get("protocol"), from, to)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"from":   from,
		"to":     to,
		"points": points,
	})
}

func (h *MetricsHandlers) handleTopTalkers(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrNoAnalytics)
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		WriteErr(w, err)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	top, err := h.history.GetTopTalkers(r.Context(), from, to, limit)
	if err != nil {
		WriteErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"talkers": top})
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/metrics"
)

// historyLen is how many throughput samples the sparklines keep.
const historyLen = 60

// DashboardModel is the main HUD view
type DashboardModel struct {
	Backend     Backend
	Current     *Current
	Snapshot    *engine.Snapshot
	RawRate     []float64
	OptRate     []float64
	LastUpdated time.Time
	Width       int
	Height      int
}

func NewDashboardModel(backend Backend) DashboardModel {
	return DashboardModel{
		Backend: backend,
	}
}

// Refresh fetches the metrics report and the latest snapshot.
func (m DashboardModel) Refresh() tea.Cmd {
	return tea.Batch(
		func() tea.Msg {
			cur, err := m.Backend.GetCurrent()
			if err != nil {
				return BackendError{Err: err}
			}
			return cur
		},
		func() tea.Msg {
			snap, err := m.Backend.GetSnapshot()
			if err != nil {
				return BackendError{Err: err}
			}
			if snap == nil {
				return nil
			}
			return snap
		},
	)
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case *Current:
		m.Current = msg
		m.RawRate = appendHistory(m.RawRate, msg.Statistics.Original.Throughput)
		m.OptRate = appendHistory(m.OptRate, msg.Statistics.Optimized.Throughput)
	case *engine.Snapshot:
		m.Snapshot = msg
	case tea.KeyMsg:
		switch msg.String() {
		case "C":
			return m, func() tea.Msg {
				if err := m.Backend.ClearMetrics(); err != nil {
					return BackendError{Err: err}
				}
				return metricsClearedMsg{}
			}
		}
	case metricsClearedMsg:
		m.RawRate, m.OptRate = nil, nil
		return m, m.Refresh()
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

type metricsClearedMsg struct{}

func appendHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	return h
}

func (m DashboardModel) View() string {
	if m.Current == nil {
		return "Loading Dashboard..."
	}
	stats := m.Current.Statistics

	// 1. Pipeline Block
	pipelineLines := []string{StyleTitle.Render("Pipeline")}
	if m.Snapshot == nil {
		pipelineLines = append(pipelineLines, StyleSubtitle.Render("Waiting for first cycle"))
	} else {
		s := m.Snapshot
		status := StyleStatusGood.Render("HEALTHY")
		if len(s.Errors) > 0 {
			status = StyleStatusWarn.Render(fmt.Sprintf("%d STAGE ERRORS", len(s.Errors)))
		}
		pipelineLines = append(pipelineLines,
			fmt.Sprintf("Cycle %d  %s", s.Cycle, status),
			fmt.Sprintf("Batch: %d pkts  Deferred: %d  Dropped: %d", len(s.Packets), s.Deferred, s.Dropped),
		)
		if len(s.Throttled) > 0 {
			pipelineLines = append(pipelineLines, StyleStatusBad.Render("Throttled: "+strings.Join(s.Throttled, ", ")))
		}
	}
	pipelineBlock := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, pipelineLines...))

	// 2. Window Blocks
	rawBlock := StyleCard.Render(windowBlock("Original", stats.Original, m.RawRate))
	optBlock := StyleCard.Render(windowBlock("Optimized", stats.Optimized, m.OptRate))

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, pipelineBlock, rawBlock, optBlock)

	// 3. Savings + Latency
	savings := 0.0
	if stats.Original.AvgSize > 0 && stats.Optimized.Count > 0 {
		savings = 1 - stats.Optimized.AvgSize/stats.Original.AvgSize
	}
	latencyLine := StyleSubtitle.Render("Not enough samples")
	if l := m.Current.LatencyMetrics; l != nil && l.Samples > 0 {
		latencyLine = fmt.Sprintf("avg %s  p95 %s  p99 %s", formatSeconds(l.Avg), formatSeconds(l.P95), formatSeconds(l.P99))
	}
	effectBlock := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Optimization"),
		fmt.Sprintf("Size saved: %s", progressBar(savings)),
		fmt.Sprintf("Arrival gap: %s", latencyLine),
	))

	// 4. Bandwidth by protocol
	bwLines := []string{StyleTitle.Render("Bandwidth by Protocol")}
	bw := topProtocols(m.Current.BandwidthUtilization, 8)
	if len(bw) == 0 {
		bwLines = append(bwLines, StyleSubtitle.Render("No traffic yet"))
	}
	peak := 0.0
	if len(bw) > 0 {
		peak = bw[0].bytes
	}
	for _, p := range bw {
		share := 0.0
		if peak > 0 {
			share = p.bytes / peak
		}
		bwLines = append(bwLines, fmt.Sprintf("%-10s %s %s", p.protocol, progressBar(share), formatBytes(int64(p.bytes))))
	}
	bwBlock := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, bwLines...))

	// 5. Patterns
	patternLines := []string{StyleTitle.Render("Traffic Patterns")}
	if m.Snapshot == nil || m.Snapshot.Patterns == nil || m.Snapshot.Patterns.Empty() {
		patternLines = append(patternLines, StyleSubtitle.Render("No clusters"))
	} else {
		for _, c := range m.Snapshot.Patterns.Clusters {
			patternLines = append(patternLines, fmt.Sprintf("#%d  %3d pkts  ~%.0f B  depth %.1f", c.ID, c.Count, c.Center.Length, c.Center.Depth))
		}
	}
	patternBlock := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, patternLines...))

	midRow := lipgloss.JoinHorizontal(lipgloss.Top, effectBlock, patternBlock)

	footer := StyleSubtitle.Render(fmt.Sprintf("Last updated: %s   [C] clear metrics  [r] refresh  [q] quit", m.LastUpdated.Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left,
		topRow,
		midRow,
		bwBlock,
		footer,
	)
}

func windowBlock(title string, w metrics.WindowStats, rate []float64) string {
	trafficLine := "Rate: (waiting for data)"
	if len(rate) > 0 {
		trafficLine = fmt.Sprintf("Rate: %s %s/s", sparkline(rate), formatBytes(int64(rate[len(rate)-1])))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render(title),
		fmt.Sprintf("Packets: %d", w.Count),
		fmt.Sprintf("Avg size: %.0f B (moving %.0f B)", w.AvgSize, w.MovingAvgSize),
		fmt.Sprintf("Min/Max: %.0f / %.0f B", w.MinSize, w.MaxSize),
		trafficLine,
	)
}

type protocolBytes struct {
	protocol string
	bytes    float64
}

// topProtocols returns at most n protocols, largest first.
func topProtocols(bw map[string]float64, n int) []protocolBytes {
	out := make([]protocolBytes, 0, len(bw))
	for p, b := range bw {
		out = append(out, protocolBytes{p, b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].bytes != out[j].bytes {
			return out[i].bytes > out[j].bytes
		}
		return out[i].protocol < out[j].protocol
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Simple text-based progress bar helper
func progressBar(percent float64) string {
	w := 20
	filled := int(float64(w) * percent)
	if filled < 0 {
		filled = 0
	}
	if filled > w {
		filled = w
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", w-filled)
	return fmt.Sprintf("[%s] %.0f%%", bar, percent*100)
}

func sparkline(data []float64) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{' ', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	max := 0.0
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		max = 1
	}

	// limit to last 20 points
	start := 0
	if len(data) > 20 {
		start = len(data) - 20
	}

	var sb strings.Builder
	for i := start; i < len(data); i++ {
		idx := int((data[i] / max) * float64(len(chars)-1))
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatSeconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond).String()
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/packet"
)

// TrafficModel lists the packets of the latest snapshot in shaped order.
type TrafficModel struct {
	Backend  Backend
	Table    table.Model
	Snapshot *engine.Snapshot
	Width    int
	Height   int
}

func NewTrafficModel(backend Backend) TrafficModel {
	columns := []table.Column{
		{Title: "Prio", Width: 5},
		{Title: "Protocols", Width: 22},
		{Title: "Source", Width: 20},
		{Title: "Destination", Width: 20},
		{Title: "Len", Width: 6},
		{Title: "Opt", Width: 6},
		{Title: "Cl", Width: 3},
		{Title: "Thr", Width: 3},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorDeep).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorIce).
		Background(ColorDeep).
		Bold(false)
	t.SetStyles(s)

	return TrafficModel{
		Backend: backend,
		Table:   t,
	}
}

// packetRow renders one shaped packet.
func packetRow(p packet.Shaped) table.Row {
	opt, cluster, throttled := "-", "-", ""
	if p.OptimizedLength != nil {
		opt = strconv.Itoa(*p.OptimizedLength)
	}
	if p.ClusterID != nil {
		cluster = strconv.Itoa(*p.ClusterID)
	}
	if p.Throttled {
		throttled = "!"
	}
	return table.Row{
		strconv.Itoa(p.Priority),
		strings.Join(p.Protocols, "/"),
		p.Source,
		p.Destination,
		strconv.Itoa(p.Length),
		opt,
		cluster,
		throttled,
	}
}

func (m TrafficModel) Update(msg tea.Msg) (TrafficModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case *engine.Snapshot:
		m.Snapshot = msg
		rows := make([]table.Row, len(msg.Packets))
		for i, p := range msg.Packets {
			rows[i] = packetRow(p)
		}
		m.Table.SetRows(rows)
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if h := msg.Height - 12; h > 3 {
			m.Table.SetHeight(h)
		}
		return m, nil
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m TrafficModel) View() string {
	if m.Snapshot == nil {
		return StyleHeader.Render("TRAFFIC") + "\n" + StyleSubtle.Render("No snapshot yet.")
	}

	protos := make([]string, 0, len(m.Snapshot.Aggregation))
	for p := range m.Snapshot.Aggregation {
		protos = append(protos, p)
	}
	sort.Strings(protos)
	var agg []string
	for _, p := range protos {
		a := m.Snapshot.Aggregation[p]
		agg = append(agg, fmt.Sprintf("%s %d/%s", p, a.Count, formatBytes(a.TotalBytes)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		StyleHeader.Render(fmt.Sprintf("TRAFFIC  cycle %d  %s", m.Snapshot.Cycle, m.Snapshot.Timestamp.Format("15:04:05"))),
		StyleCard.Render(m.Table.View()),
		StyleSubtitle.Render(strings.Join(agg, "  ")),
	)
}

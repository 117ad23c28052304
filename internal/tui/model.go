// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tui is the terminal dashboard for a running flowshape instance.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/metrics"
	"grimm.is/flowshape/internal/qos"
)

// DefaultRefresh is the polling interval of every view.
const DefaultRefresh = 2 * time.Second

// View represents the currently active screen
type View int

const (
	ViewDashboard View = iota
	ViewTraffic
	ViewPolicy
	viewCount
)

// Backend defines the interface for data retrieval and actions.
type Backend interface {
	GetCurrent() (*Current, error)
	GetSnapshot() (*engine.Snapshot, error)
	GetRules() ([]qos.Policy, error)
	RemoveRule(protocol string) error
	ClearMetrics() error
}

// Current is the live metrics report.
type Current struct {
	Statistics           metrics.Statistics `json:"statistics"`
	BandwidthUtilization map[string]float64 `json:"bandwidth_utilization"`
	LatencyMetrics       *metrics.Latency   `json:"latency_metrics"`
}

// Model is the main application state
type Model struct {
	Backend Backend

	ActiveView      View
	Width           int
	Height          int
	ConnectionError string // If set, shows disconnected state

	Dashboard DashboardModel
	Traffic   TrafficModel
	Policy    PolicyModel
}

// NewModel creates a new initial model
func NewModel(backend Backend) Model {
	return Model{
		Backend:    backend,
		ActiveView: ViewDashboard,
		Dashboard:  NewDashboardModel(backend),
		Traffic:    NewTrafficModel(backend),
		Policy:     NewPolicyModel(backend),
	}
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

// refresh fetches fresh data for every view. The traffic view is fed from
// the dashboard's snapshot fetch.
func (m Model) refresh() tea.Cmd {
	return tea.Batch(
		m.Dashboard.Refresh(),
		m.Policy.Refresh(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case BackendError:
		m.ConnectionError = msg.Err.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return RetryMsg{}
		})

	case RetryMsg:
		if m.ConnectionError != "" {
			m.ConnectionError = ""
			return m, m.refresh()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.ConnectionError != "" {
				m.ConnectionError = ""
			}
			return m, m.refresh()
		case "tab":
			m.ActiveView = (m.ActiveView + 1) % viewCount
			return m, nil
		case "1":
			m.ActiveView = ViewDashboard
			return m, nil
		case "2":
			m.ActiveView = ViewTraffic
			return m, nil
		case "3":
			m.ActiveView = ViewPolicy
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

		var cmd tea.Cmd
		m.Dashboard, cmd = m.Dashboard.Update(msg)
		cmds = append(cmds, cmd)
		m.Traffic, cmd = m.Traffic.Update(msg)
		cmds = append(cmds, cmd)
		m.Policy, cmd = m.Policy.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case TickMsg:
		m.Dashboard.LastUpdated = time.Time(msg)
		if m.ConnectionError != "" {
			// RetryMsg owns reconnection.
			return m, tick()
		}
		return m, tea.Batch(m.refresh(), tick())

	case ruleItems:
		var cmd tea.Cmd
		m.Policy, cmd = m.Policy.Update(msg)
		return m, cmd

	case *Current, *engine.Snapshot, metricsClearedMsg:
		var cmd tea.Cmd
		m.Dashboard, cmd = m.Dashboard.Update(msg)
		cmds = append(cmds, cmd)
		m.Traffic, cmd = m.Traffic.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	// Delegate to active view
	var cmd tea.Cmd
	switch m.ActiveView {
	case ViewDashboard:
		m.Dashboard, cmd = m.Dashboard.Update(msg)
	case ViewTraffic:
		m.Traffic, cmd = m.Traffic.Update(msg)
	case ViewPolicy:
		m.Policy, cmd = m.Policy.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the application
func (m Model) View() string {
	if m.ConnectionError != "" {
		msg := StyleTitle.Render("⚠ Connection Lost") + "\n\n" +
			lipgloss.NewStyle().Foreground(ColorBad).Render(m.ConnectionError) + "\n\n" +
			StyleSubtitle.Render("Attempting to reconnect... (Press q to quit)")

		return lipgloss.Place(m.Width, m.Height,
			lipgloss.Center, lipgloss.Center,
			StyleCard.Render(msg),
		)
	}

	doc := m.ViewTopBar() + "\n"
	switch m.ActiveView {
	case ViewDashboard:
		doc += m.Dashboard.View()
	case ViewTraffic:
		doc += m.Traffic.View()
	case ViewPolicy:
		doc += m.Policy.View()
	}
	return StyleApp.Render(doc)
}

// ViewTopBar renders the top navigation menu
func (m Model) ViewTopBar() string {
	var items []string

	menus := []struct {
		View  View
		Label string
		Key   string
	}{
		{ViewDashboard, "Dashboard", "1"},
		{ViewTraffic, "Traffic", "2"},
		{ViewPolicy, "QoS Rules", "3"},
	}

	for _, menu := range menus {
		key := StyleMenuKey.Render("[" + menu.Key + "]")
		if m.ActiveView == menu.View {
			items = append(items, StyleMenuItemActive.Render(key+" "+menu.Label))
		} else {
			items = append(items, StyleMenuItem.Render(key+" "+menu.Label))
		}
	}

	brand := StyleTitle.Render("FLOWSHAPE ")
	bar := lipgloss.JoinHorizontal(lipgloss.Top, append([]string{brand}, items...)...)
	return StyleTopBar.Render(bar)
}

// TickMsg drives periodic refresh.
type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(DefaultRefresh, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

type BackendError struct {
	Err error
}

type RetryMsg struct{}

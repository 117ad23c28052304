// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"grimm.is/flowshape/internal/qos"
)

type PolicyModel struct {
	Backend Backend
	List    list.Model
	Width   int
	Height  int
}

type item struct {
	protocol string
	title    string
	desc     string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.protocol }

// ruleItems is the rendered rule list.
type ruleItems []item

func NewPolicyModel(backend Backend) PolicyModel {
	items := []list.Item{
		item{title: "Loading...", desc: "Fetching QoS rules"},
	}

	defaultDelegate := list.NewDefaultDelegate()
	defaultDelegate.Styles.SelectedTitle = defaultDelegate.Styles.SelectedTitle.
		Foreground(ColorIce).
		BorderLeft(false).
		BorderLeftForeground(ColorIce)
	defaultDelegate.Styles.SelectedDesc = defaultDelegate.Styles.SelectedDesc.
		Foreground(ColorDeep)

	l := list.New(items, defaultDelegate, 0, 0)
	l.Title = "QoS Rules"
	l.SetShowHelp(false)
	l.Styles.Title = StyleTitle

	return PolicyModel{
		Backend: backend,
		List:    l,
	}
}

func policyItem(p qos.Policy) item {
	limit := "unlimited"
	if p.BandwidthLimit != nil {
		limit = formatBytes(*p.BandwidthLimit) + " per batch"
	}
	return item{
		protocol: p.Protocol,
		title:    fmt.Sprintf("%s  (priority %d)", p.Protocol, p.Priority),
		desc:     fmt.Sprintf("Limit: %s  Applied: %s", limit, p.LastApplied.Format("2006-01-02 15:04:05")),
	}
}

// Refresh fetches the rule list.
func (m PolicyModel) Refresh() tea.Cmd {
	return func() tea.Msg {
		rules, err := m.Backend.GetRules()
		if err != nil {
			return BackendError{Err: err}
		}
		items := make(ruleItems, 0, len(rules))
		for _, p := range rules {
			items = append(items, policyItem(p))
		}
		if len(items) == 0 {
			items = append(items, item{title: "No Rules", desc: "Every protocol runs at priority 0 without a limit"})
		}
		return items
	}
}

func (m PolicyModel) Update(msg tea.Msg) (PolicyModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case ruleItems:
		items := make([]list.Item, len(msg))
		for i, it := range msg {
			items[i] = it
		}
		cmd = m.List.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "d" && m.List.FilterState() != list.Filtering {
			sel, ok := m.List.SelectedItem().(item)
			if !ok || sel.protocol == "" {
				return m, nil
			}
			return m, func() tea.Msg {
				if err := m.Backend.RemoveRule(sel.protocol); err != nil {
					return BackendError{Err: err}
				}
				return m.Refresh()()
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.List.SetSize(msg.Width-4, msg.Height-6)
	}

	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

func (m PolicyModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		StyleHeader.Render("QOS RULES   [d] delete selected"),
		StyleCard.Render(m.List.View()),
	)
}

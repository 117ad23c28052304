// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorIce   = lipgloss.Color("117")
	ColorDeep  = lipgloss.Color("24")
	ColorMuted = lipgloss.Color("240")
	ColorGood  = lipgloss.Color("42")
	ColorWarn  = lipgloss.Color("214")
	ColorBad   = lipgloss.Color("196")
)

var (
	StyleApp = lipgloss.NewStyle().Padding(0, 1)

	StyleTitle    = lipgloss.NewStyle().Bold(true).Foreground(ColorIce)
	StyleSubtitle = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleSubtle   = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	StyleHeader   = lipgloss.NewStyle().Bold(true).Foreground(ColorIce).MarginBottom(1)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDeep).
			Padding(0, 1).
			MarginRight(1)

	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorBad).Bold(true)

	StyleTopBar         = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(ColorDeep)
	StyleMenuKey        = lipgloss.NewStyle().Foreground(ColorWarn)
	StyleMenuItem       = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1)
	StyleMenuItemActive = lipgloss.NewStyle().Foreground(ColorIce).Background(ColorDeep).Padding(0, 1)
)

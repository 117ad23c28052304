// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"

	tea "github.com/charmbracelet/bubbletea"
	"grimm.is/flowshape/internal/tui"
)

// RunTop implements 'flowshape top': the terminal dashboard for a running
// instance.
func RunTop(args []string) error {
	fs := flag.NewFlagSet("top", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8000", "Address of the flowshape API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := tea.NewProgram(tui.NewModel(tui.NewRemoteBackend(*addr)), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

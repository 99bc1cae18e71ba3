package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the TUI until the user quits.
func Start(deps Deps, version string) error {
	Version = version
	m := initialModel(deps)
	defer deps.Watcher.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if deps.Picker != nil {
		deps.Picker.attach(p)
		defer deps.Picker.attach(nil)
	}

	_, err := p.Run()
	return err
}

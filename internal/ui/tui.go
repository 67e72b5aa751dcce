// ABOUTME: TUI program lifecycle
// ABOUTME: Wraps the bubbletea program around the control screen
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run drives the control screen until the user quits.
func Run(ctrl Control) error {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

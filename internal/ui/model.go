// ABOUTME: Bubbletea model for the bridge control screen
// ABOUTME: Polls the controller and maps keys onto playback operations
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/castbridge/internal/app"
	"github.com/harperreed/castbridge/internal/playlist"
	"github.com/harperreed/castbridge/internal/protocol"
	"github.com/harperreed/castbridge/internal/upnp"
)

const refreshInterval = 100 * time.Millisecond

// Control is the controller surface the screen drives.
type Control interface {
	Play() error
	Pause() error
	Stop() error
	Next() error
	Previous() error
	Seek(pos time.Duration) error
	SetVolume(v float64) error
	Volume() float64
	SetMode(m playlist.Mode)
	SetBitPerfect(enabled bool)
	BitPerfect() bool
	Destinations() []app.Destination
	CurrentDestination() app.Destination
	SetDestination(d app.Destination) error
	Snapshot() protocol.StateSnapshot
	LastError() error
}

// Model is the TUI state. It holds the last snapshot it polled; the
// controller stays the single source of truth.
type Model struct {
	ctrl Control

	snapshot protocol.StateSnapshot
	dests    []app.Destination
	lastErr  string

	width    int
	height   int
	quitting bool
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// NewModel builds the screen over a controller.
func NewModel(ctrl Control) Model {
	m := Model{ctrl: ctrl}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tick()
	}
	return m, nil
}

func (m *Model) refresh() {
	m.snapshot = m.ctrl.Snapshot()
	m.dests = m.ctrl.Destinations()
	if err := m.ctrl.LastError(); err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case " ":
		if m.snapshot.State == "playing" {
			m.report(m.ctrl.Pause())
		} else {
			m.report(m.ctrl.Play())
		}
	case "s":
		m.report(m.ctrl.Stop())
	case "n":
		m.report(m.ctrl.Next())
	case "b":
		m.report(m.ctrl.Previous())
	case "right":
		m.seekBy(10 * time.Second)
	case "left":
		m.seekBy(-10 * time.Second)
	case "up":
		m.report(m.ctrl.SetVolume(m.ctrl.Volume() + 0.05))
	case "down":
		m.report(m.ctrl.SetVolume(m.ctrl.Volume() - 0.05))
	case "d":
		m.cycleDestination()
	case "m":
		m.cycleMode()
	case "p":
		m.ctrl.SetBitPerfect(!m.ctrl.BitPerfect())
	}
	m.refresh()
	return m, nil
}

func (m *Model) report(err error) {
	if err != nil {
		m.lastErr = err.Error()
	}
}

func (m *Model) seekBy(delta time.Duration) {
	pos := time.Duration(m.snapshot.Position*float64(time.Second)) + delta
	if pos < 0 {
		pos = 0
	}
	m.report(m.ctrl.Seek(pos))
}

// cycleDestination moves to the next target in the merged list, wrapping
// at the end.
func (m *Model) cycleDestination() {
	if len(m.dests) == 0 {
		return
	}
	cur := m.ctrl.CurrentDestination().Key()
	next := 0
	for i, d := range m.dests {
		if d.Key() == cur {
			next = (i + 1) % len(m.dests)
			break
		}
	}
	m.report(m.ctrl.SetDestination(m.dests[next]))
}

func (m *Model) cycleMode() {
	mode := playlist.ParseMode(m.snapshot.Mode)
	m.ctrl.SetMode((mode + 1) % 4)
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	errorStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Castbridge"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("State: "))
	b.WriteString(valueStyle.Render(m.snapshot.State))
	b.WriteString("\n")

	title := m.snapshot.Title
	if title == "" {
		title = "(nothing queued)"
	}
	b.WriteString(headerStyle.Render("Track: "))
	b.WriteString(valueStyle.Render(title))
	if m.snapshot.PlaylistCount > 0 && m.snapshot.PlaylistIndex >= 0 {
		b.WriteString(valueStyle.Render(fmt.Sprintf("  [%d/%d %s]",
			m.snapshot.PlaylistIndex+1, m.snapshot.PlaylistCount, m.snapshot.Mode)))
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Time:  "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s / %s  %s",
		formatClock(m.snapshot.Position), formatClock(m.snapshot.Duration),
		renderBar(int(m.snapshot.Position), int(m.snapshot.Duration), 30))))
	b.WriteString("\n")

	volume := int(m.snapshot.Volume*100 + 0.5)
	b.WriteString(headerStyle.Render("Volume: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("[%s] %d%%", renderBar(volume, 100, 10), volume)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Output: "))
	b.WriteString(valueStyle.Render(m.snapshot.Destination))
	if m.snapshot.Format != "" {
		b.WriteString(valueStyle.Render("  " + m.snapshot.Format))
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Targets: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d available", len(m.dests))))
	b.WriteString("\n")

	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render(
		"space:Play/Pause  s:Stop  n/b:Next/Prev  ←/→:Seek  ↑/↓:Volume  d:Output  m:Mode  p:Bit-perfect  q:Quit"))
	b.WriteString("\n")

	return b.String()
}

// formatClock renders seconds the way renderers report time positions.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	return upnp.FormatDuration(time.Duration(seconds * float64(time.Second)))
}

func renderBar(value, max, width int) string {
	if max <= 0 {
		max = 1
	}
	if value < 0 {
		value = 0
	}
	if value > max {
		value = max
	}
	filled := (value * width) / max
	var bar strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			bar.WriteString("█")
		} else {
			bar.WriteString("░")
		}
	}
	return bar.String()
}

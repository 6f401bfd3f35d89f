// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rig

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/Thermoquad/lumen/pkg/mavlink"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const previewRefresh = 100 * time.Millisecond

type previewKeyMap struct {
	Quit   key.Binding
	Detail key.Binding
}

func (k previewKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Detail, k.Quit}
}

func (k previewKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var previewKeys = previewKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Detail: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "toggle hex"),
	),
}

// StatsFunc reports link statistics for display
type StatsFunc func() mavlink.Statistics

type previewTickMsg time.Time

type previewRefreshMsg struct{}

// Preview is a terminal view of the rig's strips
type Preview struct {
	rig      *Rig
	connInfo string
	stats    StatsFunc
	keys     previewKeyMap
	help     help.Model
	detail   bool
	width    int
	quitting bool
}

// NewPreview creates a preview of rig. stats may be nil.
func NewPreview(rig *Rig, connInfo string, stats StatsFunc) Preview {
	return Preview{
		rig:      rig,
		connInfo: connInfo,
		stats:    stats,
		keys:     previewKeys,
		help:     help.New(),
		width:    80,
	}
}

func (m Preview) Init() tea.Cmd {
	return previewTickCmd()
}

func previewTickCmd() tea.Cmd {
	return tea.Tick(previewRefresh, func(t time.Time) tea.Msg {
		return previewTickMsg(t)
	})
}

func (m Preview) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Detail):
			m.detail = !m.detail
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case previewTickMsg:
		return m, previewTickCmd()

	case previewRefreshMsg:
		// View re-reads the rig
	}

	return m, nil
}

func (m Preview) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("LUMEN - RIG"))
	s.WriteString("\n")
	addr := m.rig.Address()
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | sysid %d compid %d", m.connInfo, addr.SystemID, addr.ComponentID)))
	s.WriteString("\n\n")

	var body strings.Builder
	strips := m.rig.Strips()
	pixels := m.rig.Pixels()
	for i, strip := range strips {
		body.WriteString(labelStyle.Render(fmt.Sprintf("%3d", i)))
		body.WriteString(" ")
		body.WriteString(headerStyle.Render(fmt.Sprintf("%-9s", strip.Mode)))
		body.WriteString(" ")
		body.WriteString(Swatches(pixels[i]))
		if m.detail && strip.Mode == StripIndexed {
			body.WriteString("\n    ")
			body.WriteString(headerStyle.Render(hexRow(pixels[i])))
		}
		if i < len(strips)-1 {
			body.WriteString("\n")
		}
	}
	s.WriteString(boxStyle.Render(body.String()))
	s.WriteString("\n\n")

	applied, ignored := m.rig.Counters()
	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Applied:"), valueStyle.Render(fmt.Sprintf("%d", applied)),
		labelStyle.Render("Ignored:"), valueStyle.Render(fmt.Sprintf("%d", ignored)),
		labelStyle.Render("Follow color:"), Swatch(m.rig.VehicleColor()),
	))
	if m.stats != nil {
		st := m.stats()
		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("%s %s   %s %s",
			labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
			labelStyle.Render("Errors:"), valueStyle.Render(fmt.Sprintf("%d", st.ErrorCount())),
		))
	}
	s.WriteString("\n\n")
	s.WriteString(m.help.View(m.keys))
	s.WriteString("\n")

	return s.String()
}

// Swatch renders a single color as a two-cell block
func Swatch(c lights.Color) string {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(fmt.Sprintf("#%06X", uint32(c)&0xFFFFFF))).
		Render("  ")
}

// Swatches renders a row of colors
func Swatches(colors []lights.Color) string {
	var s strings.Builder
	for _, c := range colors {
		s.WriteString(Swatch(c))
	}
	return s.String()
}

func hexRow(colors []lights.Color) string {
	parts := make([]string, len(colors))
	for i, c := range colors {
		parts[i] = fmt.Sprintf("%06X", uint32(c)&0xFFFFFF)
	}
	return strings.Join(parts, " ")
}

// PreviewRenderer wakes a running preview when the rig changes
type PreviewRenderer struct {
	program *tea.Program
}

// NewPreviewRenderer binds a renderer to a running program
func NewPreviewRenderer(p *tea.Program) *PreviewRenderer {
	return &PreviewRenderer{program: p}
}

// Render asks the preview to redraw
func (r *PreviewRenderer) Render([][]lights.Color) error {
	r.program.Send(previewRefreshMsg{})
	return nil
}

// Close is a no-op; the program owns the terminal
func (r *PreviewRenderer) Close() error {
	return nil
}

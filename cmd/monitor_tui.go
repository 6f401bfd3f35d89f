// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/lumen/internal/rig"
	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/Thermoquad/lumen/pkg/mavlink"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for anomalies, false for info
}

// Last LED_STRIP_CONFIG seen
type ledSnapshot struct {
	timestamp time.Time
	sender    mavlink.Address
	msg       mavlink.LEDStripConfig
}

// Monitor TUI model
type monitorModel struct {
	connInfo      string
	stats         func() mavlink.Statistics
	showAll       bool
	eventLog      []eventLogEntry
	maxLogEntries int
	vehicle       *mavlink.Heartbeat
	vehicleAddr   mavlink.Address
	lastLED       *ledSnapshot
	width         int
	height        int
	quitting      bool
}

// Messages
type monitorTickMsg time.Time
type monitorFrameMsg struct {
	frame     *mavlink.Frame
	anomalies []mavlink.ValidationError
}
type monitorClosedMsg struct{}

func initialMonitorModel(connInfo string, stats func() mavlink.Statistics, showAll bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		stats:         stats,
		showAll:       showAll,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "a":
			m.showAll = !m.showAll
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		return m, monitorTickCmd()

	case monitorClosedMsg:
		m.addLogEntry("Connection closed", true)

	case monitorFrameMsg:
		m.handleFrame(msg)
	}

	return m, nil
}

func (m *monitorModel) handleFrame(msg monitorFrameMsg) {
	f := msg.frame
	name := mavlink.FormatMessageName(f.MessageID())

	switch p := f.Message.(type) {
	case *mavlink.Heartbeat:
		if p.IsAutopilot() {
			if m.vehicle == nil {
				m.addLogEntry(fmt.Sprintf("Autopilot found at %d/%d", f.Sender.SystemID, f.Sender.ComponentID), false)
			}
			hb := *p
			m.vehicle = &hb
			m.vehicleAddr = f.Sender
		}
	case *mavlink.LEDStripConfig:
		m.lastLED = &ledSnapshot{timestamp: f.Timestamp(), sender: f.Sender, msg: *p}
	}

	for _, a := range msg.anomalies {
		m.addLogEntry(fmt.Sprintf("%s from %d/%d: %s", name, f.Sender.SystemID, f.Sender.ComponentID, a.Message), true)
	}
	if len(msg.anomalies) == 0 && m.showAll {
		m.addLogEntry(fmt.Sprintf("%s from %d/%d (valid)", name, f.Sender.SystemID, f.Sender.ComponentID), false)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("LUMEN - LINK MONITOR"))
	s.WriteString("\n")
	mode := "Anomalies only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'a' toggles, 'q' quits", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Statistics
	stats := m.stats()
	var validPercent, errorPercent float64
	if stats.TotalFrames > 0 {
		validPercent = float64(stats.ValidFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(stats.ErrorCount()) * 100.0 / float64(stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.ErrorCount(), errorPercent)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Heartbeats:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.Heartbeats)),
		statsLabelStyle.Render("LED:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.LEDFrames)),
		statsLabelStyle.Render("Follow:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.FollowFrames)),
	))

	if stats.CRCErrors > 0 || stats.DecodeErrors > 0 || stats.UnknownMessages > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", stats.CRCErrors)),
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", stats.DecodeErrors)),
			statsLabelStyle.Render("Unknown:"), warningStyle.Render(fmt.Sprintf("%d", stats.UnknownMessages)),
		))
	}
	if stats.Anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", stats.Anomalies)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Vehicle and last LED frame
	if m.vehicle != nil || m.lastLED != nil {
		content := strings.Builder{}
		if m.vehicle != nil {
			content.WriteString(fmt.Sprintf("%s %s   %s %s\n",
				statsLabelStyle.Render("Vehicle:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", m.vehicleAddr.SystemID, m.vehicleAddr.ComponentID)),
				statsLabelStyle.Render("State color:"), rig.Swatch(rig.StateColor(*m.vehicle)),
			))
		}
		if m.lastLED != nil {
			led := m.lastLED.msg
			content.WriteString(fmt.Sprintf("%s strip %d %s @%d ",
				statsLabelStyle.Render("Last LED:"), led.StripID, mavlink.FormatFillMode(led.FillMode), led.LEDIndex))
			if led.FillMode == mavlink.FillModeIndex {
				n := min(int(led.LEDCount), mavlink.LEDStripMaxColors)
				colors := make([]lights.Color, n)
				for i := range colors {
					colors[i] = lights.Color(led.Colors[i])
				}
				content.WriteString(rig.Swatches(colors))
			}
			content.WriteString(headerStyle.Render(" " + m.lastLED.timestamp.Format("15:04:05.000")))
		}
		s.WriteString(boxStyle.Render(strings.TrimRight(content.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 16 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

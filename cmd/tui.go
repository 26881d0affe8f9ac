// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// Attitude data
type attitudeData struct {
	timestamp time.Time
	angles    lpfc.Angles
	samples   uint64
}

// TUI model
type model struct {
	connInfo      string
	showAll       bool
	stats         *lpfc.Statistics
	started       time.Time
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	closed        bool
	lastAttitude  *attitudeData
	lastSettings  *lpfc.Settings
	now           func() time.Time
}

// Messages
type tickMsg time.Time

// formatDuration formats a duration to a human-friendly string
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms <= 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, stats *lpfc.Statistics, showAll bool) model {
	return model{
		connInfo:      connInfo,
		showAll:       showAll,
		stats:         stats,
		started:       time.Now(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		now:           time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case linkBatchMsg:
		if msg.syncMsg != nil {
			m.handleSync(*msg.syncMsg)
		}
		for _, ev := range msg.events {
			m.handleEvent(ev)
		}
		if msg.dropped > 0 {
			m.addLogEntry(fmt.Sprintf("DISPLAY BACKLOG: %d events not shown", msg.dropped), true)
		}

	case linkClosedMsg:
		m.closed = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection closed", true)
		}
	}

	return m, nil
}

func (m *model) handleSync(msg linkSyncMsg) {
	m.synchronized = true
	m.invalidBytes = msg.invalidBytes
	if msg.invalidBytes > 0 {
		m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
	} else {
		m.addLogEntry("Synchronized", false)
	}
}

func (m *model) handleEvent(ev linkEvent) {
	if ev.decodeErr != nil {
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.decodeErr), true)
		return
	}

	switch e := ev.event.(type) {
	case *lpfc.AnglesEvent:
		samples := uint64(1)
		if m.lastAttitude != nil {
			samples = m.lastAttitude.samples + 1
		}
		m.lastAttitude = &attitudeData{timestamp: e.Timestamp(), angles: e.Angles, samples: samples}
	case *lpfc.SettingsEvent:
		s := e.Settings
		m.lastSettings = &s
	}

	name := lpfc.FormatCommand(ev.event.Command())
	if len(ev.validationErrors) > 0 {
		for _, err := range ev.validationErrors {
			m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
		}
	} else if m.showAll {
		m.addLogEntry(fmt.Sprintf("%s (valid)", name), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
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
	s.WriteString(titleStyle.Render("FLIGHTLINK - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset stats | 'q' quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.closed:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
		s.WriteString("\n\n")
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	snap := m.stats.Snapshot()
	errorsTotal := snap.BadHeaders + snap.ChecksumErrors + snap.UnknownCommands + snap.SchemaErrors + snap.Overflows
	var validPercent, errorPercent float64
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
		errorPercent = float64(errorsTotal) * 100.0 / float64(snap.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errorsTotal, errorPercent)),
	))

	if snap.BadHeaders > 0 || snap.ChecksumErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Bad Header:"), errorStyle.Render(fmt.Sprintf("%d", snap.BadHeaders)),
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", snap.ChecksumErrors)),
		))
	}

	if snap.UnknownCommands > 0 || snap.SchemaErrors > 0 || snap.Overflows > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Unknown:"), errorStyle.Render(fmt.Sprintf("%d", snap.UnknownCommands)),
			statsLabelStyle.Render("Schema:"), errorStyle.Render(fmt.Sprintf("%d", snap.SchemaErrors)),
			statsLabelStyle.Render("Overflow:"), errorStyle.Render(fmt.Sprintf("%d", snap.Overflows)),
		))
	}

	if snap.AnomalousValues > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", snap.AnomalousValues)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if snap.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
		}(),
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.BytesReceived)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Attitude section (only shown once telemetry arrives)
	if m.lastAttitude != nil {
		s.WriteString(statsLabelStyle.Render("Latest Attitude:"))
		s.WriteString("\n")

		a := m.lastAttitude.angles
		attitudeContent := strings.Builder{}
		attitudeContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Roll:"), statsValueStyle.Render(fmt.Sprintf("%7.2f°", a.Roll)),
			statsLabelStyle.Render("Pitch:"), statsValueStyle.Render(fmt.Sprintf("%7.2f°", a.Pitch)),
			statsLabelStyle.Render("Yaw:"), statsValueStyle.Render(fmt.Sprintf("%7.2f°", a.Yaw)),
		))
		attitudeContent.WriteString(fmt.Sprintf("%s %s   %s %s",
			statsLabelStyle.Render("Samples:"), statsValueStyle.Render(fmt.Sprintf("%d", m.lastAttitude.samples)),
			statsLabelStyle.Render("Updated:"), headerStyle.Render(m.lastAttitude.timestamp.Format("15:04:05.000")),
		))

		s.WriteString(boxStyle.Render(attitudeContent.String()))
		s.WriteString("\n\n")
	}

	s.WriteString(headerStyle.Render("Session: " + formatDuration(m.now().Sub(m.started))))
	s.WriteString("\n")

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 17 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
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

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusGroupList = iota
	focusPIDInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// pidGroupItem is one PID group as last read from the controller
type pidGroupItem struct {
	group lpfc.PIDGroup
	pid   lpfc.PID
	known bool
}

// Implement list.Item interface
func (g pidGroupItem) Title() string { return g.group.String() }
func (g pidGroupItem) Description() string {
	if !g.known {
		return "not read yet"
	}
	return fmt.Sprintf("%d %d %d / %d", g.pid.Kp, g.pid.Ki, g.pid.Kd, g.pid.IntLimit)
}
func (g pidGroupItem) FilterValue() string { return g.group.String() }

// frameSender writes one frame to the controller
type frameSender func(frame []byte) error

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	// Connection
	send     frameSender
	connInfo string

	// PID groups
	groups    []pidGroupItem
	groupList list.Model

	// Monitoring (reused from tui.go patterns)
	stats         *lpfc.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	attitude      *attitudeData
	settings      *lpfc.Settings
	streaming     bool

	// Control
	pidInput     textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool
	now            func() time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

// commandSentMsg reports the outcome of a frame written by the model
type commandSentMsg struct {
	desc string
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(send frameSender, stats *lpfc.Statistics, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "kp ki kd int_limit"
	ti.CharLimit = 27
	ti.Width = 28

	groups := make([]pidGroupItem, len(lpfc.PIDGroups))
	items := make([]list.Item, len(lpfc.PIDGroups))
	for i, g := range lpfc.PIDGroups {
		groups[i] = pidGroupItem{group: g}
		items[i] = groups[i]
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	groupList := list.New(items, delegate, 30, 10)
	groupList.Title = "PID Groups"
	groupList.SetShowStatusBar(false)
	groupList.SetShowHelp(false)
	groupList.SetFilteringEnabled(false)

	return monitorModel{
		send:          send,
		connInfo:      connInfo,
		groups:        groups,
		groupList:     groupList,
		stats:         stats,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		pidInput:      ti,
		focusedField:  focusGroupList,
		width:         80,
		height:        24,
		now:           time.Now,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), m.refreshCmd())
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		return m, monitorTickCmd()

	case linkBatchMsg:
		if msg.syncMsg != nil {
			m.synchronized = true
			if msg.syncMsg.invalidBytes > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.syncMsg.invalidBytes), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}
		}
		for _, ev := range msg.events {
			m.processLinkEvent(ev)
		}
		if msg.dropped > 0 {
			m.addLogEntry(fmt.Sprintf("Display backlog: %d events not shown", msg.dropped), true)
		}

	case commandSentMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", msg.desc, msg.err), true)
		} else {
			m.addLogEntry("Sent "+msg.desc, false)
		}

	case linkClosedMsg:
		m.connectionLost = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection lost", true)
		}
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusPIDInput {
		m.pidInput, cmd = m.pidInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusGroupList {
		m.groupList, cmd = m.groupList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.handleEnter()

	case "esc":
		m.focusedField = focusGroupList
		m.pidInput.Blur()
		return m, nil
	}

	// Single-key commands only apply while the list has focus, so they
	// can be typed into the input.
	if m.focusedField == focusGroupList {
		switch msg.String() {
		case "q":
			m.quitting = true
			return m, tea.Quit

		case "r":
			return m, m.refreshCmd()

		case "s":
			return m.toggleStream()

		case "a":
			return m, m.sendCmd(lpfc.NewCalibrateAccelerometer(), "CAL_ACC")

		case "m":
			return m, m.sendCmd(lpfc.NewCalibrateMagnetometer(), "CAL_MAG")

		case "up", "k", "down", "j":
			m.groupList, _ = m.groupList.Update(msg)
		}
		return m, nil
	}

	// Pass through to focused component
	if m.focusedField == focusPIDInput {
		var cmd tea.Cmd
		m.pidInput, cmd = m.pidInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *monitorModel) cycleFocus(delta int) {
	maxFocus := focusButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	if m.focusedField == focusPIDInput {
		m.pidInput.Focus()
	} else {
		m.pidInput.Blur()
	}
}

func (m monitorModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	selected := m.getSelectedGroup()
	if selected == nil {
		return m, nil
	}

	switch m.focusedField {
	case focusGroupList:
		// Start editing with the current values
		if selected.known {
			p := selected.pid
			m.pidInput.SetValue(fmt.Sprintf("%d %d %d %d", p.Kp, p.Ki, p.Kd, p.IntLimit))
		} else {
			m.pidInput.SetValue("")
		}
		m.focusedField = focusPIDInput
		m.pidInput.Focus()
		return m, nil

	default:
		return m.writePID(*selected)
	}
}

// writePID sends the values in the input box, then reads them back
func (m monitorModel) writePID(item pidGroupItem) (tea.Model, tea.Cmd) {
	pid, err := parsePID(strings.Fields(m.pidInput.Value()))
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid PID values: %v", err), true)
		return m, nil
	}

	for _, v := range lpfc.ValidateEvent(&lpfc.PIDEvent{Group: item.group, PID: pid}) {
		m.addLogEntry("Warning: "+v.Message, false)
	}

	m.focusedField = focusGroupList
	m.pidInput.Blur()

	group := item.group
	return m, tea.Sequence(
		m.sendCmd(lpfc.NewSetPID(group, pid), fmt.Sprintf("%s (%s)", lpfc.FormatCommand(group.SetCommand()), lpfc.FormatPID(pid))),
		m.sendCmd(lpfc.NewGetPID(group), lpfc.FormatCommand(group.GetCommand())),
	)
}

func (m monitorModel) toggleStream() (tea.Model, tea.Cmd) {
	m.streaming = !m.streaming
	desc := "SEND_ANGLES (off)"
	if m.streaming {
		desc = "SEND_ANGLES (on)"
	}
	return m, m.sendCmd(lpfc.NewSendAngles(m.streaming), desc)
}

// refreshCmd reads every PID group and the settings
func (m monitorModel) refreshCmd() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(lpfc.PIDGroups)+1)
	for _, g := range lpfc.PIDGroups {
		cmds = append(cmds, m.sendCmd(lpfc.NewGetPID(g), lpfc.FormatCommand(g.GetCommand())))
	}
	cmds = append(cmds, m.sendCmd(lpfc.NewGetSettings(), "GET_SETTINGS"))
	return tea.Sequence(cmds...)
}

// sendCmd writes frame off the update loop, since the link may pace it
func (m monitorModel) sendCmd(frame []byte, desc string) tea.Cmd {
	send := m.send
	return func() tea.Msg {
		return commandSentMsg{desc: desc, err: send(frame)}
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("FLIGHTLINK MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = errorStyle.Render("DISCONNECTED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch r=refresh s=stream a/m=calibrate", connStatus)))
	s.WriteString("\n\n")

	// Panels
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusGroupList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	groupPanel := listStyle.Render(m.groupList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, groupPanel, " ", controlPanel))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	s.WriteString(m.renderAttitude(statsLabelStyle, statsValueStyle, headerStyle, boxStyle))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// Rendering
//////////////////////////////////////////////////////////////

func (m monitorModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.getSelectedGroup()
	if selected == nil {
		s.WriteString(headerStyle.Render("No group selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Group:"), statsValueStyle.Render(selected.group.String())))
	if selected.known {
		s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Current:"), statsValueStyle.Render(lpfc.FormatPID(selected.pid))))
	} else {
		s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Current:"), headerStyle.Render("not read yet")))
	}

	s.WriteString(statsLabelStyle.Render("New values: "))
	if m.focusedField == focusPIDInput {
		s.WriteString(m.pidInput.View())
	} else {
		val := m.pidInput.Value()
		if val == "" {
			val = m.pidInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	btnText := "[ Write PID ]"
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	if m.settings != nil {
		s.WriteString("\n\n")
		s.WriteString(statsLabelStyle.Render("Settings:"))
		s.WriteString("\n")
		s.WriteString(headerStyle.Render(lpfc.FormatSettings(*m.settings)))
	}

	return s.String()
}

func (m monitorModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	snap := m.stats.Snapshot()
	errorsTotal := snap.BadHeaders + snap.ChecksumErrors + snap.UnknownCommands + snap.SchemaErrors + snap.Overflows
	var validPercent, errorPercent float64
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
		errorPercent = float64(errorsTotal) * 100.0 / float64(snap.TotalFrames)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.FramesSent)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderAttitude(statsLabelStyle, statsValueStyle, headerStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(statsLabelStyle.Render("ATTITUDE"))
	content.WriteString(" | ")

	if m.attitude == nil {
		if m.streaming {
			content.WriteString("Waiting for telemetry...")
		} else {
			content.WriteString(headerStyle.Render("Stream off (press s)"))
		}
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	a := m.attitude.angles
	content.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  ",
		statsLabelStyle.Render("Roll:"), statsValueStyle.Render(fmt.Sprintf("%7.2f°", a.Roll)),
		statsLabelStyle.Render("Pitch:"), statsValueStyle.Render(fmt.Sprintf("%7.2f°", a.Pitch)),
		statsLabelStyle.Render("Yaw:"), statsValueStyle.Render(fmt.Sprintf("%7.2f°", a.Yaw)),
	))
	if !m.streaming {
		content.WriteString(headerStyle.Render("(stream off)"))
	} else {
		content.WriteString(headerStyle.Render(fmt.Sprintf("(%d samples)", m.attitude.samples)))
	}

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m monitorModel) renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - m.groupList.Height() - 16
	if logHeight < 3 {
		logHeight = 3
	}

	var logContent strings.Builder
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	return s.String()
}

//////////////////////////////////////////////////////////////
// Event Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) processLinkEvent(ev linkEvent) {
	if ev.decodeErr != nil {
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.decodeErr), true)
		return
	}

	switch e := ev.event.(type) {
	case *lpfc.PIDEvent:
		m.setGroup(e.Group, e.PID)
		m.addLogEntry(fmt.Sprintf("%s: %s", e.Group, lpfc.FormatPID(e.PID)), false)

	case *lpfc.SettingsEvent:
		s := e.Settings
		m.settings = &s
		m.addLogEntry("Settings received", false)

	case *lpfc.AnglesEvent:
		samples := uint64(1)
		if m.attitude != nil {
			samples = m.attitude.samples + 1
		}
		m.attitude = &attitudeData{timestamp: e.Timestamp(), angles: e.Angles, samples: samples}
	}

	name := lpfc.FormatCommand(ev.event.Command())
	for _, err := range ev.validationErrors {
		m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *monitorModel) getSelectedGroup() *pidGroupItem {
	idx := m.groupList.Index()
	if idx < 0 || idx >= len(m.groups) {
		return nil
	}
	return &m.groups[idx]
}

func (m *monitorModel) setGroup(group lpfc.PIDGroup, pid lpfc.PID) {
	for i := range m.groups {
		if m.groups[i].group == group {
			m.groups[i].pid = pid
			m.groups[i].known = true
		}
	}
	m.updateGroupList()
}

func (m *monitorModel) updateGroupList() {
	items := make([]list.Item, len(m.groups))
	for i, g := range m.groups {
		items[i] = g
	}
	m.groupList.SetItems(items)
}

func (m *monitorModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.groupList.SetSize(28, listHeight)
}

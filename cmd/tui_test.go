// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// ============================================================
// Test Helpers
// ============================================================

// pump feeds wire bytes through a dispatcher wired to a fresh event pump
// and returns what one flush delivers
func pump(t *testing.T, wire ...[]byte) []tea.Msg {
	t.Helper()
	d := lpfc.NewDispatcher(zap.NewNop())
	ep := newEventPump(d)

	dec := lpfc.NewDecoder()
	for _, chunk := range wire {
		d.DispatchResults(dec.Feed(chunk))
	}

	var msgs []tea.Msg
	ep.flush(func(msg tea.Msg) { msgs = append(msgs, msg) })
	return msgs
}

func decodeOne(t *testing.T, frame []byte) lpfc.Event {
	t.Helper()
	results := lpfc.NewDecoder().Feed(frame)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	return results[0].Event
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ============================================================
// Event Pump Tests
// ============================================================

func TestEventPump_SyncSkipsLeadingNoise(t *testing.T) {
	msgs := pump(t,
		[]byte("AT+OK\r\n"),
		lpfc.NewSettingsResponse(lpfc.Settings{AngleKp: 1}),
	)
	require.Len(t, msgs, 1)

	batch := msgs[0].(linkBatchMsg)
	require.NotNil(t, batch.syncMsg)
	assert.Positive(t, batch.syncMsg.invalidBytes)
	require.Len(t, batch.events, 1)
	assert.Nil(t, batch.events[0].decodeErr)
	assert.Equal(t, lpfc.CmdGetSettings, batch.events[0].event.Command())
}

func TestEventPump_ErrorsAfterSync(t *testing.T) {
	bad := lpfc.NewAnglesResponse(lpfc.Angles{Yaw: 10})
	bad[len(bad)-1] ^= 0x01

	msgs := pump(t,
		lpfc.NewAnglesResponse(lpfc.Angles{Roll: 1}),
		bad,
	)
	require.Len(t, msgs, 1)

	batch := msgs[0].(linkBatchMsg)
	require.Len(t, batch.events, 2)
	assert.ErrorIs(t, batch.events[1].decodeErr, lpfc.ErrChecksumMismatch)
}

func TestEventPump_CarriesValidationErrors(t *testing.T) {
	msgs := pump(t, lpfc.NewPIDResponse(lpfc.PIDYaw, lpfc.PID{Kp: -1}))
	require.Len(t, msgs, 1)

	batch := msgs[0].(linkBatchMsg)
	require.Len(t, batch.events, 1)
	require.Len(t, batch.events[0].validationErrors, 1)
	assert.Equal(t, lpfc.AnomalyNegativeGain, batch.events[0].validationErrors[0].Type)
}

func TestEventPump_NothingToSend(t *testing.T) {
	assert.Empty(t, pump(t))
}

func TestEventPump_CountsDroppedEvents(t *testing.T) {
	d := lpfc.NewDispatcher(zap.NewNop())
	ep := newEventPump(d)
	ev := decodeOne(t, lpfc.NewAnglesResponse(lpfc.Angles{Yaw: 10}))

	for i := 0; i < batchQueueSize+5; i++ {
		d.Dispatch(ev)
	}

	var msgs []tea.Msg
	send := func(msg tea.Msg) { msgs = append(msgs, msg) }
	ep.flush(send)
	require.Len(t, msgs, 1)
	batch := msgs[0].(linkBatchMsg)
	assert.Len(t, batch.events, batchQueueSize)
	assert.Equal(t, int64(5), batch.dropped)

	// The count is reported once
	ep.flush(send)
	assert.Len(t, msgs, 1)
}

func TestEventPump_RunFlushesOnDone(t *testing.T) {
	d := lpfc.NewDispatcher(zap.NewNop())
	ep := newEventPump(d)
	d.DispatchResults(lpfc.NewDecoder().Feed(lpfc.NewSettingsResponse(lpfc.Settings{})))

	done := make(chan struct{})
	close(done)

	var msgs []tea.Msg
	ep.run(done, func(msg tea.Msg) { msgs = append(msgs, msg) })
	require.Len(t, msgs, 1)
}

// ============================================================
// Error Detection Model Tests
// ============================================================

func newTestModel(showAll bool) model {
	m := initialModel("Serial: /dev/null @ 115200 baud", lpfc.NewStatistics(), showAll)
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestModel_TracksAttitude(t *testing.T) {
	m := newTestModel(false)
	ev := decodeOne(t, lpfc.NewAnglesResponse(lpfc.Angles{Roll: -2.56, Pitch: 10, Yaw: 359.5}))

	updated, _ := m.Update(linkBatchMsg{
		syncMsg: &linkSyncMsg{invalidBytes: 3},
		events:  []linkEvent{{event: ev}, {event: ev}},
	})
	m = updated.(model)

	assert.True(t, m.synchronized)
	assert.Equal(t, 3, m.invalidBytes)
	require.NotNil(t, m.lastAttitude)
	assert.Equal(t, uint64(2), m.lastAttitude.samples)
	assert.InDelta(t, -2.56, m.lastAttitude.angles.Roll, 1e-9)

	// Valid frames are not logged unless showAll
	require.Len(t, m.errorLog, 1)
	assert.Equal(t, "Synchronized after skipping 3 invalid bytes", m.errorLog[0].message)

	view := m.View()
	assert.Contains(t, view, "FLIGHTLINK - ERROR DETECTION")
	assert.Contains(t, view, "Latest Attitude:")
}

func TestModel_LogsErrorsAndAnomalies(t *testing.T) {
	m := newTestModel(false)
	ev := decodeOne(t, lpfc.NewPIDResponse(lpfc.PIDRollPitch, lpfc.PID{Kp: 1, IntLimit: -1}))

	updated, _ := m.Update(linkBatchMsg{events: []linkEvent{
		{decodeErr: &lpfc.DecodeError{Err: lpfc.ErrBadHeader, Skipped: 4}},
		{event: ev, validationErrors: lpfc.ValidateEvent(ev)},
	}})
	m = updated.(model)

	require.Len(t, m.errorLog, 2)
	assert.True(t, m.errorLog[0].isError)
	assert.Contains(t, m.errorLog[0].message, "DECODE ERROR: lpfc: bad header")
	assert.Contains(t, m.errorLog[1].message, "GET_PID_ROLL_PITCH: negative roll_pitch integrator limit")
}

func TestModel_ReportsDisplayBacklog(t *testing.T) {
	m := newTestModel(false)

	updated, _ := m.Update(linkBatchMsg{dropped: 12})
	m = updated.(model)

	require.Len(t, m.errorLog, 1)
	assert.True(t, m.errorLog[0].isError)
	assert.Contains(t, m.errorLog[0].message, "12 events not shown")
}

func TestModel_ShowAll(t *testing.T) {
	m := newTestModel(true)
	ev := decodeOne(t, lpfc.NewSettingsResponse(lpfc.Settings{AngleKp: 1}))

	updated, _ := m.Update(linkBatchMsg{events: []linkEvent{{event: ev}}})
	m = updated.(model)

	require.Len(t, m.errorLog, 1)
	assert.Equal(t, "GET_SETTINGS (valid)", m.errorLog[0].message)
	require.NotNil(t, m.lastSettings)
}

func TestModel_LogIsBounded(t *testing.T) {
	m := newTestModel(false)
	for i := 0; i < m.maxLogEntries+10; i++ {
		m.addLogEntry("entry", false)
	}
	assert.Len(t, m.errorLog, m.maxLogEntries)
}

func TestModel_ConnectionClosed(t *testing.T) {
	m := newTestModel(false)
	updated, _ := m.Update(linkClosedMsg{err: errors.New("read: EOF")})
	m = updated.(model)

	assert.True(t, m.closed)
	assert.Contains(t, m.View(), "Disconnected")
}

func TestModel_ResetKey(t *testing.T) {
	m := newTestModel(false)
	m.stats.AddBytes(10)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = updated.(model)
	assert.Zero(t, m.stats.Snapshot().BytesReceived)
}

func TestModel_QuitKey(t *testing.T) {
	m := newTestModel(false)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, updated.(model).quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

// ============================================================
// Monitor Model Tests
// ============================================================

// fakeSender records written frames
type fakeSender struct {
	frames [][]byte
	err    error
}

func (f *fakeSender) send(frame []byte) error {
	f.frames = append(f.frames, frame)
	return f.err
}

func newTestMonitor(sender *fakeSender) monitorModel {
	m := initialMonitorModel(sender.send, lpfc.NewStatistics(), "WebSocket: ws://fc.local/ws")
	m.now = func() time.Time { return fixedNow }
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMonitor_PIDEventUpdatesGroup(t *testing.T) {
	m := newTestMonitor(&fakeSender{})
	want := lpfc.PID{Kp: 600, Ki: 50, Kd: 0, IntLimit: 200}
	ev := decodeOne(t, lpfc.NewPIDResponse(lpfc.PIDYaw, want))

	updated, _ := m.Update(linkBatchMsg{events: []linkEvent{{event: ev}}})
	m = updated.(monitorModel)

	assert.True(t, m.groups[lpfc.PIDYaw].known)
	assert.Equal(t, want, m.groups[lpfc.PIDYaw].pid)
	assert.False(t, m.groups[lpfc.PIDRollPitch].known)
	assert.Equal(t, "600 50 0 / 200", m.groups[lpfc.PIDYaw].Description())
}

func TestMonitor_ReportsDisplayBacklog(t *testing.T) {
	m := newTestMonitor(&fakeSender{})
	before := len(m.errorLog)

	updated, _ := m.Update(linkBatchMsg{dropped: 3})
	m = updated.(monitorModel)

	require.Len(t, m.errorLog, before+1)
	assert.Contains(t, m.errorLog[len(m.errorLog)-1].message, "3 events not shown")
}

func TestMonitor_SettingsAndAngles(t *testing.T) {
	m := newTestMonitor(&fakeSender{})
	settings := decodeOne(t, lpfc.NewSettingsResponse(lpfc.Settings{AngleKp: 450}))
	angles := decodeOne(t, lpfc.NewAnglesResponse(lpfc.Angles{Yaw: 90}))

	updated, _ := m.Update(linkBatchMsg{events: []linkEvent{{event: settings}, {event: angles}}})
	m = updated.(monitorModel)

	require.NotNil(t, m.settings)
	assert.Equal(t, int16(450), m.settings.AngleKp)
	require.NotNil(t, m.attitude)
	assert.InDelta(t, 90, m.attitude.angles.Yaw, 1e-9)
	assert.Contains(t, m.View(), "FLIGHTLINK MONITOR")
}

func TestMonitor_EnterPrefillsInput(t *testing.T) {
	m := newTestMonitor(&fakeSender{})
	ev := decodeOne(t, lpfc.NewPIDResponse(lpfc.PIDRollPitch, lpfc.PID{Kp: 420, Ki: 1150, Kd: 20, IntLimit: 300}))
	updated, _ := m.Update(linkBatchMsg{events: []linkEvent{{event: ev}}})

	updated, _ = updated.Update(key("enter"))
	m = updated.(monitorModel)

	assert.Equal(t, focusPIDInput, m.focusedField)
	assert.Equal(t, "420 1150 20 300", m.pidInput.Value())
}

func TestMonitor_WritePIDRejectsBadInput(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMonitor(sender)
	m.focusedField = focusPIDInput
	m.pidInput.SetValue("1 2 three 4")

	updated, cmd := m.Update(key("enter"))
	m = updated.(monitorModel)

	assert.Nil(t, cmd)
	require.NotEmpty(t, m.errorLog)
	assert.Contains(t, m.errorLog[len(m.errorLog)-1].message, "Invalid PID values")
	assert.Empty(t, sender.frames)
}

func TestMonitor_WritePIDSendsCommand(t *testing.T) {
	m := newTestMonitor(&fakeSender{})
	m.focusedField = focusButton
	m.pidInput.SetValue("10 20 30 40")

	updated, cmd := m.Update(key("enter"))
	m = updated.(monitorModel)

	assert.NotNil(t, cmd)
	assert.Equal(t, focusGroupList, m.focusedField)
}

func TestMonitor_SendCmdReportsResult(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMonitor(sender)

	msg := m.sendCmd(lpfc.NewSetPID(lpfc.PIDYaw, lpfc.PID{Kp: 1}), "SET_PID_YAW")()
	assert.Equal(t, commandSentMsg{desc: "SET_PID_YAW"}, msg)
	require.Len(t, sender.frames, 1)
	assert.Equal(t, lpfc.NewSetPID(lpfc.PIDYaw, lpfc.PID{Kp: 1}), sender.frames[0])

	updated, _ := m.Update(msg)
	m = updated.(monitorModel)
	assert.Equal(t, "Sent SET_PID_YAW", m.errorLog[len(m.errorLog)-1].message)

	sender.err = errors.New("link: write: broken pipe")
	msg = m.sendCmd(lpfc.NewGetSettings(), "GET_SETTINGS")()
	updated, _ = m.Update(msg)
	m = updated.(monitorModel)
	last := m.errorLog[len(m.errorLog)-1]
	assert.True(t, last.isError)
	assert.Contains(t, last.message, "broken pipe")
}

func TestMonitor_StreamToggle(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMonitor(sender)

	updated, cmd := m.Update(key("s"))
	m = updated.(monitorModel)
	assert.True(t, m.streaming)
	require.NotNil(t, cmd)
	cmd()
	require.Len(t, sender.frames, 1)
	assert.True(t, bytes.Equal(lpfc.NewSendAngles(true), sender.frames[0]))

	updated, cmd = m.Update(key("s"))
	m = updated.(monitorModel)
	assert.False(t, m.streaming)
	cmd()
	assert.Equal(t, lpfc.NewSendAngles(false), sender.frames[1])
}

func TestMonitor_CalibrationKeys(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMonitor(sender)

	_, cmd := m.Update(key("a"))
	cmd()
	_, cmd = m.Update(key("m"))
	cmd()

	assert.Equal(t, [][]byte{lpfc.NewCalibrateAccelerometer(), lpfc.NewCalibrateMagnetometer()}, sender.frames)
}

func TestMonitor_KeysTypeIntoInput(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMonitor(sender)

	updated, _ := m.Update(key("tab"))
	m = updated.(monitorModel)
	require.Equal(t, focusPIDInput, m.focusedField)

	updated, _ = m.Update(key("s"))
	m = updated.(monitorModel)
	assert.False(t, m.streaming)
	assert.Equal(t, "s", m.pidInput.Value())
	assert.Empty(t, sender.frames)
}

func TestMonitor_ConnectionLostBlocksWrites(t *testing.T) {
	m := newTestMonitor(&fakeSender{})
	updated, _ := m.Update(linkClosedMsg{})
	m = updated.(monitorModel)
	assert.True(t, m.connectionLost)

	m.focusedField = focusButton
	m.pidInput.SetValue("1 2 3 4")
	updated, cmd := m.Update(key("enter"))
	m = updated.(monitorModel)

	assert.Nil(t, cmd)
	assert.Equal(t, "Cannot send command: connection lost", m.errorLog[len(m.errorLog)-1].message)
	assert.Contains(t, m.View(), "DISCONNECTED")
}

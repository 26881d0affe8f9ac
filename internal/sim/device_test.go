// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

// serve starts dev on a pipe and returns the ground end
func serve(t *testing.T, dev *Device) net.Conn {
	t.Helper()
	ground, fc := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Serve(ctx, fc) }()
	t.Cleanup(func() {
		cancel()
		ground.Close()
		assert.NoError(t, <-done)
	})
	return ground
}

// exchange writes frame and reads until the decoder yields one result
func exchange(t *testing.T, conn net.Conn, frame []byte) lpfc.Result {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write(frame)
	require.NoError(t, err)

	d := lpfc.NewDecoder()
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		if results := d.Feed(buf[:n]); len(results) > 0 {
			require.Len(t, results, 1)
			return results[0]
		}
	}
}

// waitFor polls cond until it holds or a second passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestDevice_Defaults(t *testing.T) {
	dev := NewDevice()
	s := dev.State()
	assert.Equal(t, DefaultPIDs, s.PIDs)
	assert.Equal(t, DefaultSettings, s.Settings)
	assert.False(t, s.Streaming)
}

func TestDevice_AnswersGets(t *testing.T) {
	conn := serve(t, NewDevice())

	for _, group := range lpfc.PIDGroups {
		r := exchange(t, conn, lpfc.NewGetPID(group))
		require.NoError(t, r.Err)
		ev := r.Event.(*lpfc.PIDEvent)
		assert.Equal(t, group, ev.Group)
		assert.Equal(t, DefaultPIDs[group], ev.PID)
	}

	r := exchange(t, conn, lpfc.NewGetSettings())
	require.NoError(t, r.Err)
	assert.Equal(t, DefaultSettings, r.Event.(*lpfc.SettingsEvent).Settings)
}

func TestDevice_ResponsesEndWithCRLF(t *testing.T) {
	conn := serve(t, NewDevice())
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err := conn.Write(lpfc.NewGetSettings())
	require.NoError(t, err)

	want := append(lpfc.NewSettingsResponse(DefaultSettings), '\r', '\n')
	got := make([]byte, len(want))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDevice_SetSettingsAndRestore(t *testing.T) {
	dev := NewDevice(WithoutTerminators())
	conn := serve(t, dev)

	custom := lpfc.Settings{AngleKp: -5, HeadingKp: 9, AngleMaxInc: 45, AngleMaxIncSonar: 5, StickScalingRollPitch: 1, StickScalingYaw: 2}
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write(lpfc.NewSetSettings(custom))
	require.NoError(t, err)

	r := exchange(t, conn, lpfc.NewGetSettings())
	require.NoError(t, r.Err)
	assert.Equal(t, custom, r.Event.(*lpfc.SettingsEvent).Settings)

	_, err = conn.Write(lpfc.NewRestoreDefaults())
	require.NoError(t, err)
	waitFor(t, func() bool { return dev.State().RestoreCount == 1 })
	assert.Equal(t, DefaultSettings, dev.State().Settings)
}

func TestDevice_Calibration(t *testing.T) {
	dev := NewDevice()
	conn := serve(t, dev)
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err := conn.Write(bytes.Join([][]byte{
		lpfc.NewCalibrateAccelerometer(),
		lpfc.NewCalibrateMagnetometer(),
		lpfc.NewCalibrateMagnetometer(),
	}, nil))
	require.NoError(t, err)

	waitFor(t, func() bool {
		s := dev.State()
		return s.AccCalibrations == 1 && s.MagCalibrations == 2
	})
}

func TestDevice_StreamToggle(t *testing.T) {
	dev := NewDevice(WithStreamInterval(2 * time.Millisecond))
	conn := serve(t, dev)
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err := conn.Write(lpfc.NewSendAngles(true))
	require.NoError(t, err)

	d := lpfc.NewDecoder()
	buf := make([]byte, 64)
	angles := 0
	for angles < 3 {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		for _, r := range d.Feed(buf[:n]) {
			require.NoError(t, r.Err)
			_, ok := r.Event.(*lpfc.AnglesEvent)
			require.True(t, ok)
			angles++
		}
	}
	assert.True(t, dev.State().Streaming)
}

func TestDevice_IgnoresGarbage(t *testing.T) {
	conn := serve(t, NewDevice())

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte("AT+NAME?\r\n"))
	require.NoError(t, err)

	r := exchange(t, conn, lpfc.NewGetPID(lpfc.PIDYaw))
	require.NoError(t, r.Err)
	assert.Equal(t, DefaultPIDs[lpfc.PIDYaw], r.Event.(*lpfc.PIDEvent).PID)
}

func TestHover_Ranges(t *testing.T) {
	for s := 0; s < 100; s++ {
		a := Hover(time.Duration(s) * 370 * time.Millisecond)
		assert.Empty(t, lpfc.ValidateEvent(&lpfc.AnglesEvent{Angles: a}))
	}
}

func TestHover_YawWrapsAtWirePrecision(t *testing.T) {
	// 359.996 degrees rounds to 360.00 on the wire
	a := Hover(35999600 * time.Microsecond)

	results := lpfc.NewDecoder().Feed(lpfc.NewAnglesResponse(a))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	ev, ok := results[0].Event.(*lpfc.AnglesEvent)
	require.True(t, ok)
	assert.Less(t, ev.Angles.Yaw, 360.0)
	assert.Empty(t, lpfc.ValidateEvent(ev))
}

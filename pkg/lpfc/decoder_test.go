// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Truncation(t *testing.T) {
	frame := NewSettingsResponse(Settings{AngleKp: 10})

	// Shorter than header + command + length: nothing, not even an error
	for n := 0; n < HeaderLen+2; n++ {
		d := NewDecoder()
		assert.Empty(t, d.Feed(frame[:n]), "prefix %d", n)
		assert.Equal(t, n, d.Buffered())
	}

	// Header present but payload incomplete: still waiting
	d := NewDecoder()
	assert.Empty(t, d.Feed(frame[:len(frame)-1]))
	assert.Equal(t, len(frame)-1, d.Buffered())

	// The last byte completes the frame
	results := d.Feed(frame[len(frame)-1:])
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int16(10), results[0].Event.(*SettingsEvent).Settings.AngleKp)
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_ByteAtATime(t *testing.T) {
	stream := concat(
		NewPIDResponse(PIDRollPitch, PID{Kp: 1}),
		NewAnglesResponse(Angles{Roll: 1.5}),
		NewSettingsResponse(Settings{HeadingKp: 7}),
	)

	d := NewDecoder()
	var results []Result
	for _, b := range stream {
		results = append(results, d.Feed([]byte{b})...)
	}

	require.Len(t, results, 3)
	assert.IsType(t, &PIDEvent{}, results[0].Event)
	assert.IsType(t, &AnglesEvent{}, results[1].Event)
	assert.IsType(t, &SettingsEvent{}, results[2].Event)
}

func TestDecoder_MultiFrame(t *testing.T) {
	d := NewDecoder()
	results := d.Feed(concat(
		NewPIDResponse(PIDYaw, PID{Kp: 11}),
		NewPIDResponse(PIDBaroAltHold, PID{Kp: 22}),
	))

	require.Len(t, results, 2)
	first := results[0].Event.(*PIDEvent)
	second := results[1].Event.(*PIDEvent)
	assert.Equal(t, PIDYaw, first.Group)
	assert.Equal(t, int16(11), first.PID.Kp)
	assert.Equal(t, PIDBaroAltHold, second.Group)
	assert.Equal(t, int16(22), second.PID.Kp)
}

func TestDecoder_FrameSplitAcrossChunks(t *testing.T) {
	a := NewPIDResponse(PIDRollPitch, PID{Kp: 1})
	b := NewPIDResponse(PIDYaw, PID{Kp: 2})
	stream := concat(a, b)

	// Split in the middle of the second frame
	cut := len(a) + 4
	results := feedAll(NewDecoder(), stream[:cut], stream[cut:])
	require.Len(t, results, 2)
	assert.Equal(t, CmdGetPIDRollPitch, results[0].Event.Command())
	assert.Equal(t, CmdGetPIDYaw, results[1].Event.Command())
}

func TestDecoder_Scaling(t *testing.T) {
	tests := []struct {
		name             string
		payload          []byte
		roll, pitch, yaw float64
	}{
		{
			name:    "mixed",
			payload: []byte{100, 0, 200, 0xFF, 50, 0},
			roll:    1.00, pitch: -0.56, yaw: 0.50,
		},
		{
			name:    "pitch 0xFF00",
			payload: []byte{100, 0, 0x00, 0xFF, 50, 0},
			roll:    1.00, pitch: -2.56, yaw: 0.50,
		},
		{
			name:    "yaw is not sign-extended",
			payload: []byte{0, 0, 0, 0, 0xFF, 0xFF},
			roll:    0, pitch: 0, yaw: 655.35,
		},
		{
			name:    "extremes",
			payload: []byte{0x00, 0x80, 0xFF, 0x7F, 0x00, 0x00},
			roll:    -327.68, pitch: 327.67, yaw: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := NewDecoder().Feed(rawFrame(byte(CmdSendAngles), tt.payload...))
			require.Len(t, results, 1)
			require.NoError(t, results[0].Err)

			ev, ok := results[0].Event.(*AnglesEvent)
			require.True(t, ok)
			assert.InDelta(t, tt.roll, ev.Angles.Roll, 1e-9)
			assert.InDelta(t, tt.pitch, ev.Angles.Pitch, 1e-9)
			assert.InDelta(t, tt.yaw, ev.Angles.Yaw, 1e-9)
		})
	}
}

func TestDecoder_PIDSigned(t *testing.T) {
	results := NewDecoder().Feed(rawFrame(byte(CmdGetPIDYaw),
		0xFF, 0xFF, 0x00, 0x80, 0x10, 0x00, 0xFF, 0x7F))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	ev := results[0].Event.(*PIDEvent)
	assert.Equal(t, PID{Kp: -1, Ki: -32768, Kd: 16, IntLimit: 32767}, ev.PID)
}

func TestDecoder_ChecksumMismatch(t *testing.T) {
	bad := NewPIDResponse(PIDRollPitch, PID{Kp: 5})
	bad[len(bad)-1] ^= 0x01
	good := NewPIDResponse(PIDYaw, PID{Kp: 6})

	d := NewDecoder()
	results := d.Feed(concat(bad, good))
	require.Len(t, results, 2)

	require.Error(t, results[0].Err)
	assert.ErrorIs(t, results[0].Err, ErrChecksumMismatch)
	var de *DecodeError
	require.ErrorAs(t, results[0].Err, &de)
	assert.Equal(t, CmdGetPIDRollPitch, de.Command)
	assert.Equal(t, bad[len(bad)-1]^0x01, de.Expected)
	assert.Equal(t, bad[len(bad)-1], de.Received)
	assert.Equal(t, len(bad), de.Skipped)

	require.NoError(t, results[1].Err)
	assert.Equal(t, int16(6), results[1].Event.(*PIDEvent).PID.Kp)
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_CorruptPayloadByte(t *testing.T) {
	bad := NewSettingsResponse(Settings{AngleKp: 100})
	bad[HeaderLen+2] ^= 0x40

	results := NewDecoder().Feed(concat(bad, settingsFixture()))
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrChecksumMismatch)
	assert.NoError(t, results[1].Err)
}

// settingsFixture returns a valid settings response that follows corrupt data
func settingsFixture() []byte {
	return NewSettingsResponse(Settings{AngleKp: 1, HeadingKp: 2, AngleMaxInc: 3})
}

func TestDecoder_UnknownCommand(t *testing.T) {
	d := NewDecoder()
	results := d.Feed(concat(
		rawFrame(0x42, 1, 2, 3),
		rawFrame(byte(CmdSetPIDYaw)), // SET commands are never sent to us
		NewAnglesResponse(Angles{Yaw: 90}),
	))

	require.Len(t, results, 3)
	assert.ErrorIs(t, results[0].Err, ErrUnknownCommand)
	assert.ErrorIs(t, results[1].Err, ErrUnknownCommand)

	var de *DecodeError
	require.ErrorAs(t, results[0].Err, &de)
	assert.Equal(t, Command(0x42), de.Command)
	assert.Equal(t, 3, de.Length)

	require.NoError(t, results[2].Err)
	assert.InDelta(t, 90.0, results[2].Event.(*AnglesEvent).Angles.Yaw, 1e-9)
}

func TestDecoder_SchemaMismatch(t *testing.T) {
	// GET_SETTINGS response with 9 instead of 10 bytes
	results := NewDecoder().Feed(concat(
		rawFrame(byte(CmdGetSettings), 1, 2, 3, 4, 5, 6, 7, 8, 9),
		settingsFixture(),
	))

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrSchemaMismatch)
	assert.NoError(t, results[1].Err)
}

func TestDecoder_BadHeader(t *testing.T) {
	d := NewDecoder()
	results := d.Feed(concat([]byte("garbage"), NewPIDResponse(PIDYaw, PID{Kp: 3})))

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrBadHeader)
	var de *DecodeError
	require.ErrorAs(t, results[0].Err, &de)
	assert.Equal(t, len("garbage"), de.Skipped)

	require.NoError(t, results[1].Err)
	assert.Equal(t, int16(3), results[1].Event.(*PIDEvent).PID.Kp)
}

func TestDecoder_BadHeaderFalseStarts(t *testing.T) {
	// Several '$' that do not start a header collapse into one resync
	d := NewDecoder()
	results := d.Feed(concat([]byte("$x$$S$S>"), NewAnglesResponse(Angles{})))

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrBadHeader)
	var de *DecodeError
	require.ErrorAs(t, results[0].Err, &de)
	assert.Equal(t, 8, de.Skipped)
	assert.NoError(t, results[1].Err)
}

func TestDecoder_BadHeaderKeepsPartialHeader(t *testing.T) {
	frame := NewPIDResponse(PIDRollPitch, PID{Kp: 9})

	d := NewDecoder()
	results := d.Feed(concat([]byte("noise"), frame[:2]))
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrBadHeader)
	assert.Equal(t, 2, d.Buffered())

	results = d.Feed(frame[2:])
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int16(9), results[0].Event.(*PIDEvent).PID.Kp)
}

func TestDecoder_OwnEchoIsBadHeader(t *testing.T) {
	// A command echoed back by the link is not mistaken for a response
	results := NewDecoder().Feed(NewGetSettings())
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Nil(t, r.Event)
		assert.ErrorIs(t, r.Err, ErrBadHeader)
	}
}

func TestDecoder_SkipsLineTerminators(t *testing.T) {
	d := NewDecoder()
	results := d.Feed(concat(
		[]byte("\r\n"),
		NewPIDResponse(PIDYaw, PID{}), []byte("\r\n"),
		NewAnglesResponse(Angles{}), []byte("\r\n"),
	))

	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_BufferOverflow(t *testing.T) {
	d := NewDecoderFor(Inbound, MaxFrameSize)
	frame := NewPIDResponse(PIDYaw, PID{Kp: 4})

	// Park a partial frame, then deliver a chunk that cannot fit
	assert.Empty(t, d.Feed(frame[:4]))
	results := d.Feed(make([]byte, MaxFrameSize))
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrBufferOverflow)

	var de *DecodeError
	require.ErrorAs(t, results[0].Err, &de)
	assert.Equal(t, 4+MaxFrameSize, de.Skipped)
	assert.Equal(t, 0, d.Buffered())

	// The decoder keeps working afterwards
	results = d.Feed(frame)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestDecoder_MinimumBufferSize(t *testing.T) {
	d := NewDecoderFor(Inbound, 16)
	frame, err := EncodeFrame(Inbound, 0x77, make([]byte, MaxPayloadSize))
	require.NoError(t, err)

	results := d.Feed(frame)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrUnknownCommand)
}

func TestDecoder_MinStreamBufferTakesFullReads(t *testing.T) {
	frame, err := EncodeFrame(Inbound, 0x77, make([]byte, MaxPayloadSize))
	require.NoError(t, err)
	stream := repeat(frame, 8)

	d := NewDecoderFor(Inbound, MinStreamBufferSize)
	var results []Result
	for len(stream) > 0 {
		n := min(ReadChunkSize, len(stream))
		results = append(results, d.Feed(stream[:n])...)
		stream = stream[n:]
	}

	require.Len(t, results, 8)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, ErrUnknownCommand)
	}
}

func TestDecoder_MaxLengthFrameAcrossChunks(t *testing.T) {
	frame, err := EncodeFrame(Inbound, 0x77, make([]byte, MaxPayloadSize))
	require.NoError(t, err)

	d := NewDecoder()
	assert.Empty(t, d.Feed(frame[:100]))
	assert.Empty(t, d.Feed(frame[100:200]))
	results := d.Feed(frame[200:])
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrUnknownCommand)
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("$S<"))
	assert.Equal(t, 3, d.Buffered())
	d.Reset()
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_CommandDirection(t *testing.T) {
	d := NewCommandDecoder()
	assert.Equal(t, Outbound, d.Direction())

	// Responses are not commands
	results := d.Feed(NewPIDResponse(PIDYaw, PID{}))
	require.NotEmpty(t, results)
	assert.ErrorIs(t, results[0].Err, ErrBadHeader)

	results = d.Feed(NewSetPID(PIDYaw, PID{Kd: 12}))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int16(12), results[0].Event.(*PIDEvent).PID.Kd)
}

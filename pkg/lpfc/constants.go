// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lpfc provides a Go implementation of the LaunchPad flight controller
// serial protocol.
//
// Every frame is an ASCII header followed by a command byte, a length byte,
// the payload and an XOR checksum:
//
//	Outbound:  "$S>" | command | length | payload[length] | checksum
//	Inbound:   "$S<" | command | length | payload[length] | checksum
//
// This package provides the command catalog, frame encoding, stream
// reassembly and decoding, event dispatch, and payload formatting.
package lpfc

// Frame headers
const (
	CommandHeader  = "$S>" // Controller -> flight controller
	ResponseHeader = "$S<" // Flight controller -> controller
	HeaderLen      = 3
)

// Frame size limits
const (
	MaxPayloadSize    = 255
	FrameOverhead     = HeaderLen + 3 // header + command + length + checksum
	MaxFrameSize      = FrameOverhead + MaxPayloadSize
	DefaultBufferSize = 1024
)

// Stream reads. Feed rejects a chunk that does not fit next to a buffered
// partial frame, so a decoder fed reads of up to ReadChunkSize bytes needs
// at least MinStreamBufferSize bytes of buffer.
const (
	ReadChunkSize       = 256
	MinStreamBufferSize = MaxFrameSize + ReadChunkSize
)

// AngleScale is the fixed-point divisor for telemetry angles.
const AngleScale = 100.0

// Command identifies the semantics of a frame.
type Command uint8

// Command identifiers
const (
	CmdSetPIDRollPitch    Command = 0
	CmdGetPIDRollPitch    Command = 1
	CmdSetPIDYaw          Command = 2
	CmdGetPIDYaw          Command = 3
	CmdSetPIDSonarAltHold Command = 4
	CmdGetPIDSonarAltHold Command = 5
	CmdSetPIDBaroAltHold  Command = 6
	CmdGetPIDBaroAltHold  Command = 7
	CmdSetSettings        Command = 8
	CmdGetSettings        Command = 9
	CmdSendAngles         Command = 10
	CmdCalibrateAcc       Command = 11
	CmdCalibrateMag       Command = 12
	CmdRestoreDefaults    Command = 13
)

// String returns the protocol name of the command.
func (c Command) String() string {
	return FormatCommand(c)
}

// Direction tells which way a frame travels.
type Direction int

const (
	// Outbound frames are commands sent to the flight controller.
	Outbound Direction = iota
	// Inbound frames are responses and telemetry from the flight controller.
	Inbound
)

// Header returns the wire header used for the direction.
func (d Direction) Header() string {
	if d == Inbound {
		return ResponseHeader
	}
	return CommandHeader
}

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// PIDGroup selects one of the four PID controllers.
type PIDGroup int

// PID groups
const (
	PIDRollPitch PIDGroup = iota
	PIDYaw
	PIDSonarAltHold
	PIDBaroAltHold
)

// PIDGroups lists every PID group in wire order.
var PIDGroups = []PIDGroup{PIDRollPitch, PIDYaw, PIDSonarAltHold, PIDBaroAltHold}

// SetCommand returns the SET_PID_* command for the group.
func (g PIDGroup) SetCommand() Command {
	return Command(2 * int(g))
}

// GetCommand returns the GET_PID_* command for the group.
func (g PIDGroup) GetCommand() Command {
	return Command(2*int(g) + 1)
}

func (g PIDGroup) String() string {
	switch g {
	case PIDRollPitch:
		return "roll_pitch"
	case PIDYaw:
		return "yaw"
	case PIDSonarAltHold:
		return "sonar_alt_hold"
	case PIDBaroAltHold:
		return "baro_alt_hold"
	default:
		return "unknown"
	}
}

// ParsePIDGroup parses a group name as produced by PIDGroup.String.
func ParsePIDGroup(s string) (PIDGroup, bool) {
	for _, g := range PIDGroups {
		if g.String() == s {
			return g, true
		}
	}
	return 0, false
}

// pidGroupFor maps a SET_PID_* or GET_PID_* command back to its group.
func pidGroupFor(c Command) (PIDGroup, bool) {
	if c > CmdGetPIDBaroAltHold {
		return 0, false
	}
	return PIDGroup(c / 2), true
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"fmt"
	"time"
)

// PID holds the gains and integrator limit of one PID controller.
type PID struct {
	Kp       int16
	Ki       int16
	Kd       int16
	IntLimit int16
}

// Settings holds the flight controller's tuning settings.
type Settings struct {
	AngleKp               int16
	HeadingKp             int16
	AngleMaxInc           uint8
	AngleMaxIncSonar      uint8
	StickScalingRollPitch int16
	StickScalingYaw       int16
}

// Angles is an attitude sample in degrees.
type Angles struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Event is a decoded frame. The set of implementations is closed:
// *PIDEvent, *SettingsEvent, *AnglesEvent, *StreamEvent and *RequestEvent.
type Event interface {
	Command() Command
	Direction() Direction
	Timestamp() time.Time
	isEvent()
}

type frameInfo struct {
	cmd       Command
	dir       Direction
	timestamp time.Time
}

// Command returns the frame's command identifier
func (f frameInfo) Command() Command { return f.cmd }

// Direction returns which way the frame travelled
func (f frameInfo) Direction() Direction { return f.dir }

// Timestamp returns the decode time
func (f frameInfo) Timestamp() time.Time { return f.timestamp }

func (frameInfo) isEvent() {}

// PIDEvent carries PID values: a GET_PID_* response, or a SET_PID_* command.
type PIDEvent struct {
	frameInfo
	Group PIDGroup
	PID   PID
}

// SettingsEvent carries settings: a GET_SETTINGS response, or a SET_SETTINGS command.
type SettingsEvent struct {
	frameInfo
	Settings Settings
}

// AnglesEvent is SEND_ANGLES attitude telemetry.
type AnglesEvent struct {
	frameInfo
	Angles Angles
}

// StreamEvent is a SEND_ANGLES command toggling telemetry.
type StreamEvent struct {
	frameInfo
	Enable bool
}

// RequestEvent is a command without payload (GET_*, CAL_*, RESTORE_DEFAULTS).
type RequestEvent struct {
	frameInfo
}

// newEvent builds the event variant for a schema from its unpacked values.
func newEvent(s Schema, v []int32, at time.Time) (Event, error) {
	info := frameInfo{cmd: s.Command, dir: s.Direction, timestamp: at}

	switch {
	case len(s.Fields) == 0:
		return &RequestEvent{frameInfo: info}, nil

	case s.Command <= CmdGetPIDBaroAltHold:
		group, _ := pidGroupFor(s.Command)
		return &PIDEvent{
			frameInfo: info,
			Group:     group,
			PID: PID{
				Kp:       int16(v[0]),
				Ki:       int16(v[1]),
				Kd:       int16(v[2]),
				IntLimit: int16(v[3]),
			},
		}, nil

	case s.Command == CmdSetSettings || s.Command == CmdGetSettings:
		return &SettingsEvent{
			frameInfo: info,
			Settings: Settings{
				AngleKp:               int16(v[0]),
				HeadingKp:             int16(v[1]),
				AngleMaxInc:           uint8(v[2]),
				AngleMaxIncSonar:      uint8(v[3]),
				StickScalingRollPitch: int16(v[4]),
				StickScalingYaw:       int16(v[5]),
			},
		}, nil

	case s.Command == CmdSendAngles && s.Direction == Inbound:
		return &AnglesEvent{
			frameInfo: info,
			Angles: Angles{
				Roll:  float64(v[0]) / s.Fields[0].Scale,
				Pitch: float64(v[1]) / s.Fields[1].Scale,
				Yaw:   float64(v[2]) / s.Fields[2].Scale,
			},
		}, nil

	case s.Command == CmdSendAngles:
		return &StreamEvent{frameInfo: info, Enable: v[0] != 0}, nil
	}

	return nil, fmt.Errorf("%w: no event for %s (%s)", ErrUnknownCommand, s.Name, s.Direction)
}

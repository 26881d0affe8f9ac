// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import "math"

// Command builder functions create wire frames ready for transmission.
// They are typed wrappers around Encode, so the values always match the
// catalog and encoding cannot fail.

// NewSetPID creates a SET_PID_* frame for the group.
func NewSetPID(group PIDGroup, pid PID) []byte {
	return MustEncode(group.SetCommand(), pid.Kp, pid.Ki, pid.Kd, pid.IntLimit)
}

// NewGetPID creates a GET_PID_* request for the group.
// The flight controller answers with a GET_PID_* response carrying the values.
func NewGetPID(group PIDGroup) []byte {
	return MustEncode(group.GetCommand())
}

// NewSetSettings creates a SET_SETTINGS frame (0x08).
func NewSetSettings(s Settings) []byte {
	return MustEncode(CmdSetSettings,
		s.AngleKp, s.HeadingKp,
		s.AngleMaxInc, s.AngleMaxIncSonar,
		s.StickScalingRollPitch, s.StickScalingYaw)
}

// NewGetSettings creates a GET_SETTINGS request (0x09).
func NewGetSettings() []byte {
	return MustEncode(CmdGetSettings)
}

// NewSendAngles creates a SEND_ANGLES frame (0x0A).
// While enabled, the flight controller streams attitude telemetry.
func NewSendAngles(enable bool) []byte {
	var v uint8
	if enable {
		v = 1
	}
	return MustEncode(CmdSendAngles, v)
}

// NewCalibrateAccelerometer creates a CAL_ACC frame (0x0B).
// The vehicle must be level and still while the flight controller calibrates.
func NewCalibrateAccelerometer() []byte {
	return MustEncode(CmdCalibrateAcc)
}

// NewCalibrateMagnetometer creates a CAL_MAG frame (0x0C).
func NewCalibrateMagnetometer() []byte {
	return MustEncode(CmdCalibrateMag)
}

// NewRestoreDefaults creates a RESTORE_DEFAULTS frame (0x0D).
func NewRestoreDefaults() []byte {
	return MustEncode(CmdRestoreDefaults)
}

// Response builders (flight controller → controller)

// NewPIDResponse creates a GET_PID_* response for the group.
func NewPIDResponse(group PIDGroup, pid PID) []byte {
	return mustEncodeResponse(group.GetCommand(), pid.Kp, pid.Ki, pid.Kd, pid.IntLimit)
}

// NewSettingsResponse creates a GET_SETTINGS response.
func NewSettingsResponse(s Settings) []byte {
	return mustEncodeResponse(CmdGetSettings,
		s.AngleKp, s.HeadingKp,
		s.AngleMaxInc, s.AngleMaxIncSonar,
		s.StickScalingRollPitch, s.StickScalingYaw)
}

// NewAnglesResponse creates SEND_ANGLES telemetry. Angles are rounded to
// 1/100 degree and clamped to the wire range.
func NewAnglesResponse(a Angles) []byte {
	roll := int16(clamp(math.Round(a.Roll*AngleScale), math.MinInt16, math.MaxInt16))
	pitch := int16(clamp(math.Round(a.Pitch*AngleScale), math.MinInt16, math.MaxInt16))
	yaw := uint16(clamp(math.Round(a.Yaw*AngleScale), 0, math.MaxUint16))
	return mustEncodeResponse(CmdSendAngles, roll, pitch, yaw)
}

func mustEncodeResponse(cmd Command, values ...any) []byte {
	frame, err := EncodeResponse(cmd, values...)
	if err != nil {
		panic("lpfc: encode error: " + err.Error())
	}
	return frame
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

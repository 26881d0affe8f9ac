// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"fmt"
	"strings"
)

// FormatEvent formats an event into a human-readable string
func FormatEvent(ev Event) string {
	timestamp := ev.Timestamp().Format("15:04:05.000")
	arrow := "<"
	if ev.Direction() == Outbound {
		arrow = ">"
	}

	result := fmt.Sprintf("[%s] %s %s (0x%02X)\n", timestamp, arrow, FormatCommand(ev.Command()), uint8(ev.Command()))
	result += FormatPayload(ev)
	return result
}

// FormatCommand returns the protocol name for a command identifier
func FormatCommand(c Command) string {
	switch c {
	// PID groups
	case CmdSetPIDRollPitch:
		return "SET_PID_ROLL_PITCH"
	case CmdGetPIDRollPitch:
		return "GET_PID_ROLL_PITCH"
	case CmdSetPIDYaw:
		return "SET_PID_YAW"
	case CmdGetPIDYaw:
		return "GET_PID_YAW"
	case CmdSetPIDSonarAltHold:
		return "SET_PID_SONAR_ALT_HOLD"
	case CmdGetPIDSonarAltHold:
		return "GET_PID_SONAR_ALT_HOLD"
	case CmdSetPIDBaroAltHold:
		return "SET_PID_BARO_ALT_HOLD"
	case CmdGetPIDBaroAltHold:
		return "GET_PID_BARO_ALT_HOLD"

	// Settings
	case CmdSetSettings:
		return "SET_SETTINGS"
	case CmdGetSettings:
		return "GET_SETTINGS"

	// Telemetry and maintenance
	case CmdSendAngles:
		return "SEND_ANGLES"
	case CmdCalibrateAcc:
		return "CAL_ACC"
	case CmdCalibrateMag:
		return "CAL_MAG"
	case CmdRestoreDefaults:
		return "RESTORE_DEFAULTS"

	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the decoded payload of an event
func FormatPayload(ev Event) string {
	switch e := ev.(type) {
	case *PIDEvent:
		return fmt.Sprintf("  Group: %s, %s\n", e.Group, FormatPID(e.PID))
	case *SettingsEvent:
		return "  " + FormatSettings(e.Settings) + "\n"
	case *AnglesEvent:
		return "  " + FormatAngles(e.Angles) + "\n"
	case *StreamEvent:
		if e.Enable {
			return "  Angle stream: Enabled\n"
		}
		return "  Angle stream: Disabled\n"
	case *RequestEvent:
		return "  (no payload)\n"
	default:
		return "  (unknown event)\n"
	}
}

// FormatPID formats PID values
func FormatPID(p PID) string {
	return fmt.Sprintf("Kp: %d, Ki: %d, Kd: %d, IntLimit: %d", p.Kp, p.Ki, p.Kd, p.IntLimit)
}

// FormatSettings formats settings on one line
func FormatSettings(s Settings) string {
	return fmt.Sprintf("AngleKp: %d, HeadingKp: %d, AngleMaxInc: %d°, AngleMaxIncSonar: %d°, StickScaling: %d/%d",
		s.AngleKp, s.HeadingKp, s.AngleMaxInc, s.AngleMaxIncSonar, s.StickScalingRollPitch, s.StickScalingYaw)
}

// FormatAngles formats an attitude sample
func FormatAngles(a Angles) string {
	return fmt.Sprintf("Roll: %7.2f°, Pitch: %7.2f°, Yaw: %7.2f°", a.Roll, a.Pitch, a.Yaw)
}

// FormatHex renders bytes as space separated hex, e.g. for raw frame dumps
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

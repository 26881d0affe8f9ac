// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import "fmt"

// AnomalyType represents different types of value anomalies
type AnomalyType int

const (
	AnomalyAngleRange AnomalyType = iota
	AnomalyHeadingRange
	AnomalyNegativeGain
	AnomalyIntLimit
	AnomalyAngleMaxInc
)

// Angle limits
const (
	MaxTiltAngle   = 180.0
	MaxHeading     = 360.0
	MaxAngleMaxInc = 90
)

// ValidationError represents a decoded value outside its plausible range
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateEvent checks decoded values for anomalies.
// Returns a slice of validation errors (empty if the values are plausible)
func ValidateEvent(ev Event) []ValidationError {
	errors := []ValidationError{}

	switch e := ev.(type) {
	case *AnglesEvent:
		errors = append(errors, validateAngles(e.Angles)...)
	case *PIDEvent:
		errors = append(errors, validatePID(e.Group, e.PID)...)
	case *SettingsEvent:
		errors = append(errors, validateSettings(e.Settings)...)
	}

	return errors
}

// validateAngles validates SEND_ANGLES telemetry
func validateAngles(a Angles) []ValidationError {
	errors := []ValidationError{}

	for _, axis := range []struct {
		name  string
		value float64
	}{{"roll", a.Roll}, {"pitch", a.Pitch}} {
		if axis.value < -MaxTiltAngle || axis.value > MaxTiltAngle {
			errors = append(errors, ValidationError{
				Type:    AnomalyAngleRange,
				Message: fmt.Sprintf("%s out of range (%.2f°, valid: ±%.0f°)", axis.name, axis.value, MaxTiltAngle),
				Details: map[string]interface{}{"axis": axis.name, "value": axis.value, "max": MaxTiltAngle},
			})
		}
	}

	if a.Yaw < 0 || a.Yaw >= MaxHeading {
		errors = append(errors, ValidationError{
			Type:    AnomalyHeadingRange,
			Message: fmt.Sprintf("yaw out of range (%.2f°, valid: 0-%.0f°)", a.Yaw, MaxHeading),
			Details: map[string]interface{}{"value": a.Yaw, "max": MaxHeading},
		})
	}

	return errors
}

// validatePID validates PID values
func validatePID(group PIDGroup, p PID) []ValidationError {
	errors := []ValidationError{}

	if p.Kp < 0 || p.Ki < 0 || p.Kd < 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyNegativeGain,
			Message: fmt.Sprintf("negative %s gain (Kp=%d, Ki=%d, Kd=%d)", group, p.Kp, p.Ki, p.Kd),
			Details: map[string]interface{}{"group": group.String(), "kp": p.Kp, "ki": p.Ki, "kd": p.Kd},
		})
	}

	if p.IntLimit < 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyIntLimit,
			Message: fmt.Sprintf("negative %s integrator limit (%d)", group, p.IntLimit),
			Details: map[string]interface{}{"group": group.String(), "int_limit": p.IntLimit},
		})
	}

	return errors
}

// validateSettings validates settings values
func validateSettings(s Settings) []ValidationError {
	errors := []ValidationError{}

	if s.AngleMaxInc > MaxAngleMaxInc {
		errors = append(errors, ValidationError{
			Type:    AnomalyAngleMaxInc,
			Message: fmt.Sprintf("AngleMaxInc out of range (%d°, max %d°)", s.AngleMaxInc, MaxAngleMaxInc),
			Details: map[string]interface{}{"field": "AngleMaxInc", "value": s.AngleMaxInc, "max": MaxAngleMaxInc},
		})
	}
	if s.AngleMaxIncSonar > MaxAngleMaxInc {
		errors = append(errors, ValidationError{
			Type:    AnomalyAngleMaxInc,
			Message: fmt.Sprintf("AngleMaxIncSonar out of range (%d°, max %d°)", s.AngleMaxIncSonar, MaxAngleMaxInc),
			Details: map[string]interface{}{"field": "AngleMaxIncSonar", "value": s.AngleMaxIncSonar, "max": MaxAngleMaxInc},
		})
	}

	return errors
}

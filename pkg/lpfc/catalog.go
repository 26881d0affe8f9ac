// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import "fmt"

// FieldKind is the wire type of a payload field.
type FieldKind int

// Field kinds. Multi-byte kinds are little-endian.
const (
	KindUint8 FieldKind = iota
	KindInt16
	KindUint16
)

// Width returns the encoded size of the kind in bytes.
func (k FieldKind) Width() int {
	if k == KindUint8 {
		return 1
	}
	return 2
}

func (k FieldKind) String() string {
	switch k {
	case KindUint8:
		return "u8"
	case KindInt16:
		return "i16"
	case KindUint16:
		return "u16"
	default:
		return "?"
	}
}

// Field is one entry of a payload schema.
type Field struct {
	Name  string
	Kind  FieldKind
	Scale float64 // fixed-point divisor, 0 when the value is not scaled
}

// Schema is the payload layout of a command in one direction.
type Schema struct {
	Command   Command
	Name      string
	Direction Direction
	Fields    []Field
}

// Width returns the total encoded payload size.
func (s Schema) Width() int {
	n := 0
	for _, f := range s.Fields {
		n += f.Kind.Width()
	}
	return n
}

var (
	pidFields = []Field{
		{Name: "Kp", Kind: KindInt16},
		{Name: "Ki", Kind: KindInt16},
		{Name: "Kd", Kind: KindInt16},
		{Name: "IntLimit", Kind: KindInt16},
	}

	settingsFields = []Field{
		{Name: "AngleKp", Kind: KindInt16},
		{Name: "HeadingKp", Kind: KindInt16},
		{Name: "AngleMaxInc", Kind: KindUint8},
		{Name: "AngleMaxIncSonar", Kind: KindUint8},
		{Name: "StickScalingRollPitch", Kind: KindInt16},
		{Name: "StickScalingYaw", Kind: KindInt16},
	}

	// Heading is never negative, so yaw is not sign-extended.
	angleFields = []Field{
		{Name: "Roll", Kind: KindInt16, Scale: AngleScale},
		{Name: "Pitch", Kind: KindInt16, Scale: AngleScale},
		{Name: "Yaw", Kind: KindUint16, Scale: AngleScale},
	}

	enableFields = []Field{
		{Name: "Enable", Kind: KindUint8},
	}
)

var outboundCatalog = [...]Schema{
	{CmdSetPIDRollPitch, "SET_PID_ROLL_PITCH", Outbound, pidFields},
	{CmdGetPIDRollPitch, "GET_PID_ROLL_PITCH", Outbound, nil},
	{CmdSetPIDYaw, "SET_PID_YAW", Outbound, pidFields},
	{CmdGetPIDYaw, "GET_PID_YAW", Outbound, nil},
	{CmdSetPIDSonarAltHold, "SET_PID_SONAR_ALT_HOLD", Outbound, pidFields},
	{CmdGetPIDSonarAltHold, "GET_PID_SONAR_ALT_HOLD", Outbound, nil},
	{CmdSetPIDBaroAltHold, "SET_PID_BARO_ALT_HOLD", Outbound, pidFields},
	{CmdGetPIDBaroAltHold, "GET_PID_BARO_ALT_HOLD", Outbound, nil},
	{CmdSetSettings, "SET_SETTINGS", Outbound, settingsFields},
	{CmdGetSettings, "GET_SETTINGS", Outbound, nil},
	{CmdSendAngles, "SEND_ANGLES", Outbound, enableFields},
	{CmdCalibrateAcc, "CAL_ACC", Outbound, nil},
	{CmdCalibrateMag, "CAL_MAG", Outbound, nil},
	{CmdRestoreDefaults, "RESTORE_DEFAULTS", Outbound, nil},
}

var inboundCatalog = map[Command]Schema{
	CmdGetPIDRollPitch:    {CmdGetPIDRollPitch, "GET_PID_ROLL_PITCH", Inbound, pidFields},
	CmdGetPIDYaw:          {CmdGetPIDYaw, "GET_PID_YAW", Inbound, pidFields},
	CmdGetPIDSonarAltHold: {CmdGetPIDSonarAltHold, "GET_PID_SONAR_ALT_HOLD", Inbound, pidFields},
	CmdGetPIDBaroAltHold:  {CmdGetPIDBaroAltHold, "GET_PID_BARO_ALT_HOLD", Inbound, pidFields},
	CmdGetSettings:        {CmdGetSettings, "GET_SETTINGS", Inbound, settingsFields},
	CmdSendAngles:         {CmdSendAngles, "SEND_ANGLES", Inbound, angleFields},
}

// Lookup returns the schema of cmd for the given direction.
// ErrUnknownCommand is returned when the command has no schema in that direction.
func Lookup(cmd Command, dir Direction) (Schema, error) {
	if dir == Inbound {
		if s, ok := inboundCatalog[cmd]; ok {
			return s, nil
		}
		return Schema{}, fmt.Errorf("%w: 0x%02X (%s)", ErrUnknownCommand, uint8(cmd), dir)
	}
	if int(cmd) < len(outboundCatalog) {
		return outboundCatalog[cmd], nil
	}
	return Schema{}, fmt.Errorf("%w: 0x%02X (%s)", ErrUnknownCommand, uint8(cmd), dir)
}

// Commands returns every command with a schema in the given direction, in id order.
func Commands(dir Direction) []Command {
	var cmds []Command
	for i := 0; i < 256; i++ {
		if _, err := Lookup(Command(i), dir); err == nil {
			cmds = append(cmds, Command(i))
		}
	}
	return cmds
}

// Pack serializes values in schema order. Each value must have the Go type of
// its field kind: int16 for i16, uint16 for u16 and uint8 for u8.
func (s Schema) Pack(values []any) ([]byte, error) {
	if len(values) != len(s.Fields) {
		return nil, fmt.Errorf("%w: %s takes %d fields, got %d", ErrSchemaMismatch, s.Name, len(s.Fields), len(values))
	}

	payload := make([]byte, 0, s.Width())
	for i, f := range s.Fields {
		switch f.Kind {
		case KindUint8:
			v, ok := values[i].(uint8)
			if !ok {
				return nil, fieldTypeError(s, f, values[i])
			}
			payload = append(payload, v)
		case KindInt16:
			v, ok := values[i].(int16)
			if !ok {
				return nil, fieldTypeError(s, f, values[i])
			}
			payload = append(payload, byte(v), byte(uint16(v)>>8))
		case KindUint16:
			v, ok := values[i].(uint16)
			if !ok {
				return nil, fieldTypeError(s, f, values[i])
			}
			payload = append(payload, byte(v), byte(v>>8))
		}
	}
	return payload, nil
}

func fieldTypeError(s Schema, f Field, v any) error {
	return fmt.Errorf("%w: %s field %s wants %s, got %T", ErrSchemaMismatch, s.Name, f.Name, f.Kind, v)
}

// Unpack reconstructs the raw field values from payload. Only i16 fields are
// sign-extended. Scaling is left to the caller.
func (s Schema) Unpack(payload []byte) ([]int32, error) {
	if len(payload) != s.Width() {
		return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrSchemaMismatch, s.Name, s.Width(), len(payload))
	}

	values := make([]int32, len(s.Fields))
	off := 0
	for i, f := range s.Fields {
		switch f.Kind {
		case KindUint8:
			values[i] = int32(payload[off])
		case KindInt16:
			values[i] = int32(int16(uint16(payload[off]) | uint16(payload[off+1])<<8))
		case KindUint16:
			values[i] = int32(uint16(payload[off]) | uint16(payload[off+1])<<8)
		}
		off += f.Kind.Width()
	}
	return values, nil
}

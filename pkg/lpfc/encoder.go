// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import "fmt"

// Encode creates a complete outbound (command) frame for cmd.
// Values are checked against the outbound schema, see Schema.Pack.
func Encode(cmd Command, values ...any) ([]byte, error) {
	return encode(Outbound, cmd, values)
}

// EncodeResponse creates a complete inbound (response) frame for cmd,
// as the flight controller would send it.
func EncodeResponse(cmd Command, values ...any) ([]byte, error) {
	return encode(Inbound, cmd, values)
}

// MustEncode is like Encode but panics on error. Only use it with values
// whose types are fixed at compile time.
func MustEncode(cmd Command, values ...any) []byte {
	frame, err := Encode(cmd, values...)
	if err != nil {
		panic(fmt.Sprintf("lpfc: encode error: %v", err))
	}
	return frame
}

func encode(dir Direction, cmd Command, values []any) ([]byte, error) {
	schema, err := Lookup(cmd, dir)
	if err != nil {
		return nil, err
	}

	payload, err := schema.Pack(values)
	if err != nil {
		return nil, err
	}

	return EncodeFrame(dir, cmd, payload)
}

// EncodeFrame wraps a raw payload in a frame without consulting the catalog.
// Returns ErrPayloadTooLarge if the payload does not fit the length byte.
func EncodeFrame(dir Direction, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, FrameOverhead+len(payload))
	frame = append(frame, dir.Header()...)
	frame = append(frame, byte(cmd), byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, frameChecksum(cmd, payload))

	return frame, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

import (
	"errors"
	"fmt"
)

var (
	ErrBadHeader        = errors.New("lpfc: bad header")
	ErrChecksumMismatch = errors.New("lpfc: checksum mismatch")
	ErrUnknownCommand   = errors.New("lpfc: unknown command")
	ErrSchemaMismatch   = errors.New("lpfc: schema mismatch")
	ErrPayloadTooLarge  = errors.New("lpfc: payload too large")
	ErrBufferOverflow   = errors.New("lpfc: buffer overflow")
)

// DecodeError describes a frame the decoder dropped.
type DecodeError struct {
	Err      error // one of the sentinel errors above
	Command  Command
	Length   int
	Expected uint8 // checksum computed locally
	Received uint8 // checksum on the wire
	Skipped  int   // bytes discarded
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	switch e.Err {
	case ErrBadHeader:
		return fmt.Sprintf("%v: skipped %d bytes", e.Err, e.Skipped)
	case ErrChecksumMismatch:
		return fmt.Sprintf("%v: command %s, expected 0x%02X, got 0x%02X",
			e.Err, FormatCommand(e.Command), e.Expected, e.Received)
	case ErrUnknownCommand:
		return fmt.Sprintf("%v: 0x%02X (len=%d)", e.Err, uint8(e.Command), e.Length)
	case ErrSchemaMismatch:
		return fmt.Sprintf("%v: command %s, len=%d", e.Err, FormatCommand(e.Command), e.Length)
	case ErrBufferOverflow:
		return fmt.Sprintf("%v: dropped %d bytes", e.Err, e.Skipped)
	default:
		return fmt.Sprintf("%v", e.Err)
	}
}

// Unwrap returns the sentinel error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short label for err, suitable for metrics and statistics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrBadHeader):
		return "bad_header"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrBufferOverflow):
		return "buffer_overflow"
	default:
		return "other"
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpfc

// Checksum computes the running XOR of data, starting from zero.
func Checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// frameChecksum computes the checksum over command, length and payload.
func frameChecksum(cmd Command, payload []byte) uint8 {
	return uint8(cmd) ^ uint8(len(payload)) ^ Checksum(payload)
}

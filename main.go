// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Flightlink - LaunchPad Flight Controller Link Tool
//
// A CLI tool for tuning, monitoring and testing a LaunchPad flight
// controller over its binary serial protocol.

package main

import (
	"os"

	"github.com/Thermoquad/flightlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <acc|mag>",
	Short: "Start accelerometer or magnetometer calibration",
	Long: `Trigger a sensor calibration on the flight controller.

The controller does not acknowledge calibration commands; keep the craft level
and still (acc) or rotate it through every axis (mag) until the status LED
says otherwise.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"acc", "mag"},
	RunE:      runCalibrate,
}

var restoreDefaultsCmd = &cobra.Command{
	Use:   "restore_defaults",
	Short: "Restore factory PID gains and settings",
	RunE:  runRestoreDefaults,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(restoreDefaultsCmd)
}

func calibrationFrame(sensor string) ([]byte, error) {
	switch sensor {
	case "acc":
		return lpfc.NewCalibrateAccelerometer(), nil
	case "mag":
		return lpfc.NewCalibrateMagnetometer(), nil
	default:
		return nil, fmt.Errorf("unknown sensor %q (want acc or mag)", sensor)
	}
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	frame, err := calibrationFrame(args[0])
	if err != nil {
		return err
	}
	return sendOnly(frame)
}

func runRestoreDefaults(cmd *cobra.Command, args []string) error {
	return sendOnly(lpfc.NewRestoreDefaults())
}

// sendOnly opens a session, writes one frame that has no reply, and closes
func sendOnly(frame []byte) error {
	s, err := openSession(logger)
	if err != nil {
		return err
	}
	s.start()
	defer s.close()

	if err := s.send(frame); err != nil {
		return err
	}
	fmt.Printf("Sent %s\n", lpfc.FormatCommand(lpfc.Command(frame[lpfc.HeaderLen])))
	return nil
}

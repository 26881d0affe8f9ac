// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display flight controller frames as they arrive.

Each frame is shown with timestamp, command name and decoded payload. Frames
that fail to decode are printed as [ERROR] lines and the log continues.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	s, err := openSession(logger)
	if err != nil {
		return err
	}

	fmt.Printf("Flightlink - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	disp := s.link.Dispatcher()
	show := func(ev lpfc.Event) { fmt.Print(lpfc.FormatEvent(ev)) }
	disp.OnPID(func(e *lpfc.PIDEvent) { show(e) })
	disp.OnSettings(func(e *lpfc.SettingsEvent) { show(e) })
	disp.OnAngles(func(e *lpfc.AnglesEvent) { show(e) })
	disp.OnError(func(err error) { fmt.Printf("[ERROR] %v\n", err) })

	s.start()
	err = s.run()
	fmt.Printf("Connection closed\n")
	return err
}

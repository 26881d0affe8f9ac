// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Request the flight controller settings and wait for a valid frame until
timeout.

Invalid bytes are ignored; any complete frame with a correct checksum counts,
so a controller that is already streaming angles passes too.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	s, err := openSession(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Flightlink - Packet Test\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	frames := make(chan lpfc.Event, 1)
	offer := func(ev lpfc.Event) {
		select {
		case frames <- ev:
		default:
		}
	}

	var skipped atomic.Int64
	disp := s.link.Dispatcher()
	disp.OnPID(func(e *lpfc.PIDEvent) { offer(e) })
	disp.OnSettings(func(e *lpfc.SettingsEvent) { offer(e) })
	disp.OnAngles(func(e *lpfc.AnglesEvent) { offer(e) })
	disp.OnError(func(err error) {
		var de *lpfc.DecodeError
		if errors.As(err, &de) {
			skipped.Add(int64(de.Skipped))
		}
	})
	s.start()

	if err := s.send(lpfc.NewGetSettings()); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}

	select {
	case ev := <-frames:
		if n := skipped.Load(); n > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", n)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Command: %s\n", lpfc.FormatCommand(ev.Command()))
		fmt.Print(lpfc.FormatPayload(ev))
		_ = s.close()
		os.Exit(0)

	case <-s.done():
		fmt.Fprintf(os.Stderr, "Read error: %v\n", s.err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		_ = s.close()
		os.Exit(1)
	}

	return nil
}

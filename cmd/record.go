// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/internal/capture"
	"github.com/Thermoquad/flightlink/internal/link"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var (
	recordQuiet  bool
	recordAngles bool
)

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Record link traffic to a capture file",
	Long: `Record every byte received and every frame sent to a capture file.

The capture keeps raw chunks with their arrival time, so decode errors and
line noise are preserved for later analysis with the replay command.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().BoolVarP(&recordQuiet, "quiet", "q", false, "Do not print decoded frames")
	recordCmd.Flags().BoolVar(&recordAngles, "angles", false, "Enable the attitude stream while recording")
}

func runRecord(cmd *cobra.Command, args []string) error {
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	source := cfg.URL
	if source == "" {
		source = cfg.Port
	}
	w, err := capture.NewWriter(bw, source)
	if err != nil {
		return err
	}

	s, err := openSession(logger, link.WithCapture(w))
	if err != nil {
		return err
	}

	fmt.Printf("Flightlink - Recording\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("File: %s (session %s)\n", args[0], w.Header().SessionID)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	if !recordQuiet {
		disp := s.link.Dispatcher()
		show := func(ev lpfc.Event) { fmt.Print(lpfc.FormatEvent(ev)) }
		disp.OnPID(func(e *lpfc.PIDEvent) { show(e) })
		disp.OnSettings(func(e *lpfc.SettingsEvent) { show(e) })
		disp.OnAngles(func(e *lpfc.AnglesEvent) { show(e) })
		disp.OnError(func(err error) { fmt.Printf("[ERROR] %v\n", err) })
	}
	s.start()

	if recordAngles {
		if err := s.send(lpfc.NewSendAngles(true)); err != nil {
			logger.Warn("failed to start angle stream", zap.Error(err))
		}
	}

	runErr := s.run()
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush capture: %w", err)
	}

	fmt.Printf("\n%s", s.link.Statistics().String())
	return runErr
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/internal/logging"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
	streamAngles  bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze corrupted frames and anomalous values",
	Long: `Track frame errors and anomalous values with statistics.

This command validates each frame and detects:
  - Bad headers, checksum mismatches and buffer overflows
  - Unknown commands and payload length mismatches
  - Anomalous values (tilt beyond ±180°, heading outside 0-360°, negative gains)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.
Use --angles to turn on the attitude stream so there is traffic to check.

Errors before the first valid frame are counted as skipped bytes, not errors.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	errorDetectionCmd.Flags().BoolVar(&streamAngles, "angles", false, "Enable the attitude stream while running")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if useTUI {
		return runTUIMode()
	}
	return runTextMode()
}

// startAngleStream enables telemetry if --angles was given
func startAngleStream(s *session, l *zap.Logger) {
	if !streamAngles {
		return
	}
	if err := s.send(lpfc.NewSendAngles(true)); err != nil {
		l.Warn("failed to start angle stream", zap.Error(err))
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DROPPED <<<\n\n")
}

// printValidationErrors prints validation errors for an event
func printValidationErrors(ev lpfc.Event, errors []lpfc.ValidationError) {
	timestamp := ev.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n",
		timestamp, lpfc.FormatCommand(ev.Command()), uint8(ev.Command()))
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case lpfc.AnomalyAngleRange, lpfc.AnomalyHeadingRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		case lpfc.AnomalyNegativeGain, lpfc.AnomalyIntLimit:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if group, ok := err.Details["group"].(string); ok {
				fmt.Printf("    group=%s\n", group)
			}

		case lpfc.AnomalyAngleMaxInc:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Print(lpfc.FormatPayload(ev))
	fmt.Printf("  >>> VALUE REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode() error {
	tuiLogger, err := logging.ForTUI(cfg.Log)
	if err != nil {
		return err
	}

	s, err := openSession(tuiLogger)
	if err != nil {
		return err
	}

	m := initialModel(s.connInfo, s.link.Statistics(), showAll)
	p := tea.NewProgram(m)

	ep := newEventPump(s.link.Dispatcher())
	s.start()
	pumpToProgram(ep, s, p)
	startAngleStream(s, tuiLogger)

	_, runErr := p.Run()
	if streamAngles {
		_ = s.send(lpfc.NewSendAngles(false))
	}
	_ = s.close()

	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode() error {
	s, err := openSession(logger)
	if err != nil {
		return err
	}

	fmt.Printf("Flightlink - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Sync tracking, ignore decode errors until first valid frame
	synchronized := false
	invalidBytesBeforeSync := 0

	handle := func(ev lpfc.Event) {
		if !synchronized {
			synchronized = true
			if invalidBytesBeforeSync > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", invalidBytesBeforeSync)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		}

		if validationErrors := lpfc.ValidateEvent(ev); len(validationErrors) > 0 {
			printValidationErrors(ev, validationErrors)
		} else if showAll {
			fmt.Print(lpfc.FormatEvent(ev))
		}
	}

	disp := s.link.Dispatcher()
	disp.OnPID(func(e *lpfc.PIDEvent) { handle(e) })
	disp.OnSettings(func(e *lpfc.SettingsEvent) { handle(e) })
	disp.OnAngles(func(e *lpfc.AnglesEvent) { handle(e) })
	disp.OnError(func(err error) {
		if synchronized {
			printDecodeError(err)
			return
		}
		var de *lpfc.DecodeError
		if errors.As(err, &de) {
			invalidBytesBeforeSync += de.Skipped
		}
	})

	s.start()
	startAngleStream(s, logger)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(s.link.Statistics().String())
			fmt.Println()

		case <-s.ctx.Done():
			if streamAngles {
				_ = s.send(lpfc.NewSendAngles(false))
			}
			err := s.close()
			fmt.Println()
			fmt.Print(s.link.Statistics().String())
			return err

		case <-s.done():
			fmt.Println()
			fmt.Print(s.link.Statistics().String())
			return s.close()
		}
	}
}

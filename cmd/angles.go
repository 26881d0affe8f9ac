// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var (
	anglesDuration int
)

var anglesCmd = &cobra.Command{
	Use:   "angles",
	Short: "Stream attitude telemetry",
	Long: `Enable the SEND_ANGLES stream and print roll, pitch and yaw as they arrive.

Streaming is disabled again on exit. With --duration 0 the stream runs until
Ctrl+C.`,
	RunE: runAngles,
}

func init() {
	rootCmd.AddCommand(anglesCmd)
	anglesCmd.Flags().IntVar(&anglesDuration, "duration", 0, "Stop after this many seconds (0 = until Ctrl+C)")
}

func runAngles(cmd *cobra.Command, args []string) error {
	s, err := openSession(logger)
	if err != nil {
		return err
	}

	fmt.Printf("Flightlink - Attitude Stream\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	samples := 0
	s.link.Dispatcher().OnAngles(func(e *lpfc.AnglesEvent) {
		samples++
		fmt.Printf("[%s] %s\n", e.Timestamp().Format("15:04:05.000"), lpfc.FormatAngles(e.Angles))
	})
	s.link.Dispatcher().OnError(func(err error) {
		logger.Debug("decode error", zap.Error(err))
	})
	s.start()

	if err := s.send(lpfc.NewSendAngles(true)); err != nil {
		_ = s.close()
		return err
	}

	var timeout <-chan time.Time
	if anglesDuration > 0 {
		timeout = time.After(time.Duration(anglesDuration) * time.Second)
	}
	select {
	case <-timeout:
	case <-s.ctx.Done():
	case <-s.done():
		return s.close()
	}

	if err := s.send(lpfc.NewSendAngles(false)); err != nil {
		logger.Warn("failed to stop angle stream", zap.Error(err))
	}

	err = s.close()
	fmt.Printf("\n%d samples in %s\n", samples, formatDuration(time.Since(s.started)))
	return err
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/internal/logging"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for tuning a flight controller",
	Long: `Monitor and tune a flight controller via an interactive terminal UI.

Features:
  - PID group list with current gains, read on start
  - PID editing (Enter on a group, type "kp ki kd int_limit", Enter to write)
  - Live attitude from the SEND_ANGLES stream (s toggles it)
  - Accelerometer and magnetometer calibration (a, m)
  - Link statistics and event log

Tab switches between the group list, the value input and the write button.
A lost connection is reported in the header; restart the command to
reconnect.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Logs would corrupt the alt screen; they only go to --log-file
	tuiLogger, err := logging.ForTUI(cfg.Log)
	if err != nil {
		return err
	}

	s, err := openSession(tuiLogger)
	if err != nil {
		return err
	}

	m := initialMonitorModel(s.send, s.link.Statistics(), s.connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())

	ep := newEventPump(s.link.Dispatcher())
	s.start()
	pumpToProgram(ep, s, p)

	final, runErr := p.Run()

	// Leave the controller quiet
	if fm, ok := final.(monitorModel); ok && fm.streaming && !fm.connectionLost {
		if err := s.send(lpfc.NewSendAngles(false)); err != nil {
			tuiLogger.Warn("failed to stop angle stream", zap.Error(err))
		}
	}
	_ = s.close()

	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

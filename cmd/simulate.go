// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/internal/sim"
	"github.com/Thermoquad/flightlink/internal/transport"
)

var (
	simulateInterval time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Act as a flight controller on a serial port",
	Long: `Answer commands on --port the way the flight controller firmware does.

PID gains and settings are kept in memory, SEND_ANGLES streams a synthetic
hover, and calibration and restore commands are logged. Pair it with a
virtual serial cable (e.g. socat pty,link=/tmp/fc pty,link=/tmp/gs) to test
the other commands without hardware.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", sim.DefaultStreamInterval, "Attitude telemetry period")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if cfg.Port == "" {
		return fmt.Errorf("--port is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := transport.OpenSerial(cfg.Port, cfg.Baud)
	if err != nil {
		return err
	}

	logger.Info("simulating flight controller",
		zap.String("port", cfg.Port),
		zap.Int("baud", cfg.Baud),
		zap.Duration("interval", simulateInterval))

	dev := sim.NewDevice(
		sim.WithStreamInterval(simulateInterval),
		sim.WithLogger(logger),
	)
	return dev.Serve(ctx, conn)
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/flightlink/internal/config"
	"github.com/Thermoquad/flightlink/internal/logging"
)

var (
	// Loaded in PersistentPreRunE, before any command runs
	cfg    *config.Config
	logger = zap.NewNop()

	v          = config.New()
	configFile string
)

// flagKeys maps persistent flags to configuration keys
var flagKeys = map[string]string{
	"port":          "port",
	"baud":          "baud",
	"url":           "url",
	"username":      "username",
	"no-ssl-verify": "no-ssl-verify",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",
	"metrics-addr":  "metrics.addr",
	"send-rate":     "link.send-rate",
}

var rootCmd = &cobra.Command{
	Use:   "flightlink",
	Short: "LaunchPad flight controller link tool",
	Long: `flightlink - A CLI tool for talking to a LaunchPad flight controller over its
binary serial protocol.

Reads and tunes PID groups and settings, streams attitude telemetry, triggers
calibration, and monitors link health. Traffic can be recorded to a capture
file and replayed offline, and a simulated flight controller is included for
bench testing.

Connection modes:
  Serial:    --port /dev/rfcomm0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Every flag can also be set in a config file (--config) or through a
FLIGHTLINK_ environment variable, e.g. FLIGHTLINK_LOG_LEVEL=debug.

For WebSocket authentication, the password is read from the FLIGHTLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()

	// Serial connection flags
	pf.StringP("port", "p", "", "Serial port device")
	pf.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	pf.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.String("username", "", "Username for HTTP Basic auth")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Ambient
	pf.StringVar(&configFile, "config", "", "Config file (yaml, toml or json)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console or json)")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	pf.Float64("send-rate", 20, "Maximum commands per second")

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	l, err := logging.New(cfg.Log, nil)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = l
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

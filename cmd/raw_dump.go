// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flightlink/internal/transport"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var (
	rawDumpDuration int
)

var rawDumpCmd = &cobra.Command{
	Use:   "raw_dump",
	Short: "Hex dump received bytes to test connection stability",
	Long: `Dump every chunk of bytes received, without decoding, for a fixed duration.

A heartbeat line is printed every second while the link is quiet. Useful for
checking a Bluetooth serial bridge or WebSocket relay before suspecting the
protocol layer.

Exit codes:
  0 - Connection stayed up for the whole duration
  1 - Connection dropped
  2 - Connection error`,
	RunE: runRawDump,
}

func init() {
	rootCmd.AddCommand(rawDumpCmd)
	rawDumpCmd.Flags().IntVar(&rawDumpDuration, "duration", 30, "Test duration in seconds")
}

func runRawDump(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := transport.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Flightlink - Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", rawDumpDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(rawDumpDuration) * time.Second)
	bytesReceived := 0
	chunksReceived := 0

	results := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %s\n", formatDuration(time.Since(start)))
		fmt.Printf("Chunks received: %d\n", chunksReceived)
		fmt.Printf("Bytes received: %d\n", bytesReceived)
		fmt.Printf("Result: %s\n", result)
	}

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			bytesReceived += len(data)
			chunksReceived++
			fmt.Printf("[%s] Received %d bytes: %s\n",
				time.Now().Format("15:04:05.000"), len(data), lpfc.FormatHex(data))

		case err := <-errChan:
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrConnectionClosed) {
				err = errors.New("closed by peer")
			}
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			results("FAILED (connection error)")
			os.Exit(1)

		case <-ctx.Done():
			results("INTERRUPTED")
			return nil

		case <-time.After(1 * time.Second):
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	results("PASSED (connection stable)")
	return nil
}

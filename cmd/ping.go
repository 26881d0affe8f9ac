// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure command round trip time",
	Long: `Send GET_SETTINGS requests and time the SEND_SETTINGS replies.

Each ping waits up to --timeout seconds for the reply. Telemetry and other
frames arriving in between are ignored.

Exit codes:
  0 - Every ping answered
  1 - At least one ping lost
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	s, err := openSession(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	s.start()

	fmt.Printf("Flightlink - Ping Test\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var total time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(pingTimeout)*time.Second)
		start := time.Now()
		ev, err := s.link.Request(ctx, lpfc.NewGetSettings(), lpfc.CmdGetSettings)
		cancel()

		switch {
		case err == nil:
			rtt := time.Since(start)
			total += rtt
			fmt.Printf("reply %s, rtt=%v\n", lpfc.FormatCommand(ev.Command()), rtt.Round(time.Millisecond))
			successCount++
		case ctx.Err() != nil && s.ctx.Err() == nil:
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if s.ctx.Err() != nil {
			break
		}
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}
	_ = s.close()

	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		sent, successCount, lossPercent(sent, successCount))
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// lossPercent returns the share of unanswered requests
func lossPercent(sent, received int) float64 {
	if sent == 0 {
		return 0
	}
	return float64(sent-received) / float64(sent) * 100
}

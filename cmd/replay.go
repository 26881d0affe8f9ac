// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flightlink/internal/capture"
	"github.com/Thermoquad/flightlink/pkg/lpfc"
)

var (
	replayRealtime bool
	replayErrors   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a capture file offline",
	Long: `Decode a capture written by the record command and print every frame.

Received bytes and sent commands are decoded separately, so both sides of the
conversation are shown. Statistics for the received side are printed at the
end. No connection flags are needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Pace output at the recorded timing")
	replayCmd.Flags().BoolVar(&replayErrors, "errors-only", false, "Only print decode errors and anomalies")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(bufio.NewReader(f))
	if err != nil {
		return err
	}

	h := r.Header()
	fmt.Printf("Flightlink - Replay\n")
	fmt.Printf("Session: %s\n", h.SessionID)
	fmt.Printf("Source: %s\n", h.Source)
	fmt.Printf("Started: %s\n\n", h.Started.Format(time.RFC3339))

	p := &replayer{
		out:        os.Stdout,
		errorsOnly: replayErrors,
		sleep:      time.Sleep,
		realtime:   replayRealtime,
	}
	stats, err := p.replay(r)
	fmt.Printf("\n%s", stats.String())
	return err
}

// replayer decodes the records of a capture in order
type replayer struct {
	out        io.Writer
	errorsOnly bool
	realtime   bool
	sleep      func(time.Duration)
}

func (p *replayer) replay(r *capture.Reader) (*lpfc.Statistics, error) {
	decoders := map[lpfc.Direction]*lpfc.Decoder{
		lpfc.Inbound:  lpfc.NewDecoder(),
		lpfc.Outbound: lpfc.NewCommandDecoder(),
	}
	stats := lpfc.NewStatistics()
	var last time.Duration

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		if p.realtime && rec.Offset > last {
			p.sleep(rec.Offset - last)
		}
		last = rec.Offset

		d, ok := decoders[rec.Direction]
		if !ok {
			return stats, fmt.Errorf("record at %s: unknown direction %d", rec.Offset, rec.Direction)
		}
		if rec.Direction == lpfc.Inbound {
			stats.AddBytes(len(rec.Data))
		}

		for _, res := range d.Feed(rec.Data) {
			p.report(rec, res, stats)
		}
	}
}

func (p *replayer) report(rec capture.Record, res lpfc.Result, stats *lpfc.Statistics) {
	if res.Err != nil {
		if rec.Direction == lpfc.Inbound {
			stats.Update(res, nil)
		}
		fmt.Fprintf(p.out, "[%s] [ERROR] %v\n", formatOffset(rec.Offset), res.Err)
		return
	}

	var anomalies []lpfc.ValidationError
	if rec.Direction == lpfc.Inbound {
		anomalies = lpfc.ValidateEvent(res.Event)
		stats.Update(res, anomalies)
	} else {
		stats.AddSent()
	}

	for _, a := range anomalies {
		fmt.Fprintf(p.out, "[%s] [ANOMALY] %s: %s\n", formatOffset(rec.Offset), res.Event.Command(), a.Message)
	}
	if !p.errorsOnly {
		cmd := res.Event.Command()
		fmt.Fprintf(p.out, "[%s] %s %s (0x%02X)\n%s", formatOffset(rec.Offset),
			arrow(rec.Direction), lpfc.FormatCommand(cmd), uint8(cmd), lpfc.FormatPayload(res.Event))
	}
}

// formatOffset renders a capture offset as mm:ss.mmm
func formatOffset(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

func arrow(dir lpfc.Direction) string {
	if dir == lpfc.Outbound {
		return ">"
	}
	return "<"
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/backplate/pkg/backplate"
	"github.com/Thermoquad/backplate/pkg/comms"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze corrupt frames and implausible readings",
	Long: `Track framing errors, short payloads, and anomalous sensor values with statistics.

This command passively decodes the link and detects:
  - CRC failures and discarded noise bytes
  - Payloads shorter than their message type requires
  - Anomalous readings (temperature, humidity, input voltage out of range)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// frameEvent is one decoded frame with the parser counters at that point
type frameEvent struct {
	timestamp   time.Time
	frame       backplate.Frame
	parserStats backplate.ParserStats
	errors      []backplate.ValidationError
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	t, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}
	defer t.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if useTUI {
		return runTUIMode(ctx, t, connInfo)
	}
	return runTextMode(ctx, t, connInfo)
}

// readFrames validates frames on a reader goroutine and delivers them on
// the returned channel. The error channel receives the read error, if any.
func readFrames(ctx context.Context, t comms.Transport) (<-chan frameEvent, <-chan error) {
	events := make(chan frameEvent, 64)
	errChan := make(chan error, 1)

	go func() {
		parser := backplate.NewParser()
		err := streamFrames(ctx, t, parser, func(ts time.Time, f backplate.Frame) {
			ev := frameEvent{
				timestamp:   ts,
				frame:       f,
				parserStats: parser.Stats(),
				errors:      backplate.ValidateFrame(f),
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		errChan <- err
	}()

	return events, errChan
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(ev frameEvent) {
	timestamp := ev.timestamp.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%04X)\n", timestamp, ev.frame.ID, uint16(ev.frame.ID))
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range ev.errors {
		switch err.Type {
		case backplate.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				if minimum, ok := err.Details["minimum"].(int); ok {
					fmt.Printf("    Length: received=%d, minimum=%d\n", length, minimum)
				}
			}

		case backplate.AnomalyInvalidTemp, backplate.AnomalyInvalidHumidity, backplate.AnomalyInvalidVoltage:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Print(backplate.FormatHex(ev.frame.Payload))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, t comms.Transport, connInfo string) error {
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	events, errChan := readFrames(ctx, t)

	go func() {
		synchronized := false
		for {
			select {
			case ev := <-events:
				if !synchronized {
					synchronized = true
					p.Send(syncMsg{invalidBytes: ev.parserStats.NoiseDropped})
				}
				p.Send(frameMsg(ev))

			case err := <-errChan:
				if err != nil {
					p.Send(linkErrMsg{err: err})
				}
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}

// runTextMode runs error detection as a plain log
func runTextMode(ctx context.Context, t comms.Transport, connInfo string) error {
	fmt.Printf("Backplate - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := backplate.NewStatistics()
	events, errChan := readFrames(ctx, t)

	// Sync tracking: noise before the first frame is expected
	synchronized := false

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	var lastCRCRejects uint64

	for {
		select {
		case ev := <-events:
			if !synchronized {
				synchronized = true
				if ev.parserStats.NoiseDropped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", ev.parserStats.NoiseDropped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			if rejects := ev.parserStats.CRCRejects; rejects > lastCRCRejects {
				fmt.Printf("[%s] \033[1;31mCRC ERROR:\033[0m %d frame(s) rejected\n\n",
					ev.timestamp.Format("15:04:05.000"), rejects-lastCRCRejects)
				lastCRCRejects = rejects
			}

			stats.Update(ev.frame, ev.errors)
			stats.UpdateParser(ev.parserStats)

			if len(ev.errors) > 0 {
				printValidationErrors(ev)
			} else if showAll {
				fmt.Print(backplate.FormatFrame(ev.timestamp, ev.frame))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-errChan:
			fmt.Println()
			fmt.Print(stats.String())
			if errors.Is(err, ErrConnectionClosed) {
				fmt.Println("Connection closed")
				return nil
			}
			return err
		}
	}
}

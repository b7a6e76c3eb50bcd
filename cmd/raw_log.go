// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

var rawLogRecord string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display backplate response frames as they arrive.

This command never writes to the link. It shows each frame with timestamp,
message type, and decoded payload data. Use --record to also save the raw
bytes to a capture file for later replay.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Save received bytes to a capture file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	t, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}
	defer t.Close()

	recorder, closeRecorder, err := openRecorder(rawLogRecord)
	if err != nil {
		return err
	}
	defer closeRecorder()

	fmt.Printf("Backplate - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, cancel := signalContext()
	defer cancel()

	parser := backplate.NewParser()
	err = streamFrames(ctx, withRecorder(t, recorder), parser, func(ts time.Time, f backplate.Frame) {
		fmt.Print(backplate.FormatFrame(ts, f))
	})

	stats := parser.Stats()
	fmt.Printf("\n%d frames, %d CRC rejects, %d noise bytes\n", stats.Frames, stats.CRCRejects, stats.NoiseDropped)

	// A closed bridge ends the log normally
	if errors.Is(err, ErrConnectionClosed) {
		fmt.Println("Connection closed")
		return nil
	}
	return err
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid backplate frame",
	Long: `Wait for a valid backplate response frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
response frame. It ignores invalid bytes and waits for a complete, valid
frame (passing CRC check). Nothing is written to the link, so a backplate that
is not already streaming will time out; use "run" to bring the link up.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	t, connInfo, err := OpenTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Close()

	fmt.Printf("Backplate - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid backplate frame...\n\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		frame   backplate.Frame
		skipped uint64
	}

	parser := backplate.NewParser()
	resultChan := make(chan result, 1)
	errChan := make(chan error, 1)

	go func() {
		err := streamFrames(ctx, t, parser, func(_ time.Time, f backplate.Frame) {
			select {
			case resultChan <- result{frame: f, skipped: parser.Stats().NoiseDropped}:
				cancel()
			default:
			}
		})
		if err != nil {
			errChan <- err
		}
	}()

	select {
	case r := <-resultChan:
		if r.skipped > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", r.skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%04X)\n", r.frame.ID, uint16(r.frame.ID))
		fmt.Printf("  Length: %d bytes\n", len(r.frame.Payload))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}

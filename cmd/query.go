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
	"github.com/Thermoquad/backplate/pkg/comms"
)

var (
	queryTimeout int
	queryCount   int
)

// queryReplies maps GET_* commands to the reply they expect.
// Commands not listed here are answered by any frame.
var queryReplies = map[backplate.MessageType]backplate.MessageType{
	backplate.MsgGetTfeVersion:             backplate.MsgTfeVersion,
	backplate.MsgGetTfeBuildInfo:           backplate.MsgTfeBuildInfo,
	backplate.MsgGetBackplateModelAndBslID: backplate.MsgBackplateModelAndBslID,
}

var queryCmd = &cobra.Command{
	Use:   "query [ID]",
	Short: "Send a command and wait for the backplate's reply",
	Long: `Send a command frame to the backplate and wait for its reply.

ID is a message name or number and defaults to GET_TFE_VERSION. The backplate
only answers once the link is up, so this is normally used on a link that
another process keeps alive, or through a WebSocket bridge.

This is useful for verifying:
  - The connection reaches the backplate
  - Command frames are accepted
  - Bidirectional frame flow works

Exit codes:
  0 - All queries answered
  1 - One or more queries failed/timed out
  2 - Connection error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 2, "Timeout in seconds for each query")
	queryCmd.Flags().IntVar(&queryCount, "count", 1, "Number of queries to send")
}

// queryOnce writes command and waits for a reply accepted by match
func queryOnce(t comms.Transport, command []byte, match func(backplate.Frame) bool, timeout time.Duration) (backplate.Frame, error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	defer func() {
		// Only one reader may be active on the transport
		cancel()
		<-done
	}()

	if _, err := t.Write(command); err != nil {
		close(done)
		return backplate.Frame{}, fmt.Errorf("send failed: %w", err)
	}

	replyChan := make(chan backplate.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(done)
		err := streamFrames(ctx, t, backplate.NewParser(), func(_ time.Time, f backplate.Frame) {
			if !match(f) {
				// Ignore unrelated telemetry
				return
			}
			select {
			case replyChan <- f:
				cancel()
			default:
			}
		})
		if err != nil {
			errChan <- err
		}
	}()

	select {
	case f := <-replyChan:
		return f, nil
	case err := <-errChan:
		return backplate.Frame{}, fmt.Errorf("read failed: %w", err)
	case <-time.After(timeout):
		return backplate.Frame{}, fmt.Errorf("no response in %v", timeout)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	id := backplate.MsgGetTfeVersion
	if len(args) > 0 {
		var err error
		id, err = parseMessageID(args[0])
		if err != nil {
			return err
		}
	}

	command, err := backplate.EncodeCommand(id, nil)
	if err != nil {
		return err
	}

	match := func(backplate.Frame) bool { return true }
	if reply, ok := queryReplies[id]; ok {
		match = func(f backplate.Frame) bool { return f.ID == reply }
	}

	t, connInfo, err := OpenTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Close()

	fmt.Printf("Backplate - Query\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Command: %s (0x%04X)\n", id, uint16(id))
	fmt.Printf("Timeout: %d seconds per query\n\n", queryTimeout)

	successCount := 0
	timeout := time.Duration(queryTimeout) * time.Second

	for i := 1; i <= queryCount; i++ {
		fmt.Printf("Query %d/%d: ", i, queryCount)

		startTime := time.Now()
		f, err := queryOnce(t, command, match, timeout)
		if err != nil {
			fmt.Printf("FAILED (%v)\n", err)
		} else {
			rtt := time.Since(startTime)
			fmt.Printf("%s, rtt=%v\n", f.ID, rtt.Round(time.Millisecond))
			fmt.Print(backplate.FormatPayload(f.ID, f.Payload))
			successCount++
		}

		// Small delay between queries
		if i < queryCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	failCount := queryCount - successCount
	fmt.Printf("\n--- Query statistics ---\n")
	fmt.Printf("%d queries sent, %d replies received, %.0f%% loss\n",
		queryCount, successCount, float64(failCount)/float64(queryCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

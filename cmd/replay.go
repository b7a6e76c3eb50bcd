// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backplate/pkg/backplate"
	"github.com/Thermoquad/backplate/pkg/capture"
)

var (
	replayShowTx   bool
	replayValidate bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a recorded capture file",
	Long: `Decode a capture written by "run --record" or "raw_log --record".

Received bytes are fed through the frame parser exactly as they arrived, so
split and corrupted frames are handled the same way as on a live link. Each
frame is printed with its recorded timestamp.

With --tx, commands sent to the backplate are decoded and printed as well.
With --validate, frames with implausible readings are flagged.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayShowTx, "tx", false, "Also decode transmitted command frames")
	replayCmd.Flags().BoolVar(&replayValidate, "validate", false, "Flag frames with anomalous values")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	reader := capture.NewReader(f)
	parser := backplate.NewParser()
	stats := backplate.NewStatistics()
	records := 0

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", records, err)
		}
		records++

		if rec.Direction == capture.DirTx {
			if replayShowTx {
				printTxRecord(rec)
			}
			continue
		}

		for _, frame := range parser.Feed(rec.Data) {
			validationErrors := backplate.ValidateFrame(frame)
			stats.Update(frame, validationErrors)

			fmt.Print(backplate.FormatFrame(rec.Time, frame))
			if replayValidate {
				for _, v := range validationErrors {
					fmt.Printf("  \033[1;33mANOMALY:\033[0m %s\n", v.Message)
				}
			}
		}
	}

	stats.UpdateParser(parser.Stats())
	fmt.Printf("\n%d records, %d bytes left unparsed\n", records, parser.Buffered())
	fmt.Print(stats.String())
	return nil
}

// printTxRecord prints a command written to the backplate
func printTxRecord(rec capture.Record) {
	ts := rec.Time.Format("15:04:05.000")

	frame, err := backplate.Decode(backplate.RoleCommand, rec.Data)
	if err != nil {
		fmt.Printf("[%s] TX %d bytes (%v)\n", ts, len(rec.Data), err)
		return
	}

	fmt.Printf("[%s] TX %s (0x%04X) len=%d\n", ts, frame.ID, uint16(frame.ID), len(frame.Payload))
	if len(frame.Payload) > 0 {
		fmt.Print(backplate.FormatHex(frame.Payload))
	}
}

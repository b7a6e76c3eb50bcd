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

	"github.com/Thermoquad/backplate/pkg/backplate"
	"github.com/Thermoquad/backplate/pkg/capture"
	"github.com/Thermoquad/backplate/pkg/comms"
)

// idlePoll is the pause after an empty read in passive commands
const idlePoll = 10 * time.Millisecond

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openRecorder creates a capture file, or returns nil when path is empty
func openRecorder(path string) (*capture.Writer, func() error, error) {
	if path == "" {
		return nil, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	return capture.NewWriter(f), f.Close, nil
}

// withRecorder wraps t so its traffic is captured when w is set
func withRecorder(t comms.Transport, w *capture.Writer) comms.Transport {
	if w == nil {
		return t
	}
	return capture.NewRecordingTransport(t, w)
}

// streamFrames passively reads t until ctx is cancelled or a read fails,
// calling fn for every decoded response frame.
func streamFrames(ctx context.Context, t comms.Transport, parser *backplate.Parser, fn func(time.Time, backplate.Frame)) error {
	buf := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := t.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			time.Sleep(idlePoll)
			continue
		}

		now := time.Now()
		for _, f := range parser.Feed(buf[:n]) {
			fn(now, f)
		}
	}
}

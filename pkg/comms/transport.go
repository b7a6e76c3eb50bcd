// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import "time"

// Transport is the duplex byte link to the backplate.
//
// Read must not block: it returns (0, nil) when nothing is available, which
// the engine treats as "try again later", never as end of stream.
type Transport interface {
	Open(baud int) error
	Close() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SendBreak() error
	Flush() error
}

// Clock supplies time for cadences and stage timeouts.
// Every sleep the engine performs goes through Sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep pauses the calling goroutine
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

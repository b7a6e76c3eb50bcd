// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"sync"

	"github.com/golang/glog"

	"github.com/Thermoquad/backplate/pkg/comms"
)

var (
	_ comms.Transport = (*ReplayTransport)(nil)
	_ comms.Transport = (*RecordingTransport)(nil)
)

// ReplayTransport serves the received bytes of a capture and discards writes
type ReplayTransport struct {
	mu      sync.Mutex
	chunks  [][]byte
	pending []byte
	written int
}

// NewReplayTransport builds a transport from captured records; only DirRx
// records are served.
func NewReplayTransport(records []Record) *ReplayTransport {
	t := &ReplayTransport{}
	for _, r := range records {
		if r.Direction == DirRx && len(r.Data) > 0 {
			t.chunks = append(t.chunks, r.Data)
		}
	}
	return t
}

// Open always succeeds
func (t *ReplayTransport) Open(baud int) error { return nil }

// Close always succeeds
func (t *ReplayTransport) Close() error { return nil }

// SendBreak is a no-op
func (t *ReplayTransport) SendBreak() error { return nil }

// Flush is a no-op; captured bytes are never discarded
func (t *ReplayTransport) Flush() error { return nil }

// Read returns the next captured chunk, or 0 once the capture is exhausted
func (t *ReplayTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) == 0 {
		if len(t.chunks) == 0 {
			return 0, nil
		}
		t.pending = t.chunks[0]
		t.chunks = t.chunks[1:]
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Write discards p
func (t *ReplayTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.written += len(p)
	t.mu.Unlock()
	return len(p), nil
}

// Written returns the number of bytes discarded by Write
func (t *ReplayTransport) Written() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// Remaining reports whether captured bytes are still unread
func (t *ReplayTransport) Remaining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending) > 0 || len(t.chunks) > 0
}

// RecordingTransport wraps a transport and captures everything it carries
type RecordingTransport struct {
	comms.Transport
	w *Writer
}

// NewRecordingTransport records inner's traffic to w
func NewRecordingTransport(inner comms.Transport, w *Writer) *RecordingTransport {
	return &RecordingTransport{Transport: inner, w: w}
}

// Read reads from the wrapped transport and records received bytes
func (t *RecordingTransport) Read(p []byte) (int, error) {
	n, err := t.Transport.Read(p)
	if n > 0 {
		t.record(DirRx, p[:n])
	}
	return n, err
}

// Write records outgoing bytes and writes them to the wrapped transport
func (t *RecordingTransport) Write(p []byte) (int, error) {
	n, err := t.Transport.Write(p)
	if n > 0 {
		t.record(DirTx, p[:n])
	}
	return n, err
}

func (t *RecordingTransport) record(dir Direction, data []byte) {
	if err := t.w.Write(dir, data); err != nil {
		glog.Warningf("capture: %v", err)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

// fakeClock advances only when slept on
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.Advance(d)
	runtime.Gosched()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeTransport serves queued chunks to Read and records decoded commands.
// respond, when set, is called for every written command and its chunks are
// queued for reading.
type fakeTransport struct {
	mu sync.Mutex

	openErr  error
	readErr  error
	writeErr error

	opens   int
	closes  int
	breaks  int
	flushes int
	isOpen  bool
	baud    int

	rx       [][]byte
	commands []backplate.Frame
	respond  func(cmd backplate.Frame) [][]byte
}

func (t *fakeTransport) Open(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	if t.openErr != nil {
		return t.openErr
	}
	t.isOpen = true
	t.baud = baud
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	t.isOpen = false
	return nil
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return 0, t.readErr
	}
	if len(t.rx) == 0 {
		return 0, nil
	}
	n := copy(p, t.rx[0])
	if n < len(t.rx[0]) {
		t.rx[0] = t.rx[0][n:]
	} else {
		t.rx = t.rx[1:]
	}
	return n, nil
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	f, err := backplate.Decode(backplate.RoleCommand, p)
	if err != nil {
		panic(err)
	}
	t.commands = append(t.commands, f)
	if t.respond != nil {
		t.rx = append(t.rx, t.respond(f)...)
	}
	return len(p), nil
}

func (t *fakeTransport) SendBreak() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breaks++
	return nil
}

func (t *fakeTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushes++
	return nil
}

// queue appends raw bytes for the next reads
func (t *fakeTransport) queue(chunks ...[]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = append(t.rx, chunks...)
}

// sent returns the ids of the commands written so far
func (t *fakeTransport) sent() []backplate.MessageType {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]backplate.MessageType, len(t.commands))
	for i, f := range t.commands {
		ids[i] = f.ID
	}
	return ids
}

// countSent returns how many commands with id were written
func (t *fakeTransport) countSent(id backplate.MessageType) int {
	n := 0
	for _, got := range t.sent() {
		if got == id {
			n++
		}
	}
	return n
}

func response(t *testing.T, id backplate.MessageType, payload []byte) []byte {
	t.Helper()
	data, err := backplate.EncodeResponse(id, payload)
	require.NoError(t, err)
	return data
}

var fetPresencePayload = []byte{0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// backplateResponder behaves like a healthy device
func backplateResponder(t *testing.T) func(cmd backplate.Frame) [][]byte {
	return func(cmd backplate.Frame) [][]byte {
		switch cmd.ID {
		case backplate.MsgReset:
			return [][]byte{
				response(t, backplate.MsgTempHumidityData, []byte{0xE8, 0x08, 0xC2, 0x01}),
				response(t, backplate.MsgFetPresenceData, fetPresencePayload),
				response(t, backplate.MsgResponseASCII, []byte(backplate.BreakMarker)),
			}
		case backplate.MsgGetTfeVersion:
			return [][]byte{response(t, backplate.MsgTfeVersion, []byte("1.0.26"))}
		case backplate.MsgGetTfeBuildInfo:
			return [][]byte{response(t, backplate.MsgTfeBuildInfo, []byte("2019-04-05 19:24:34"))}
		case backplate.MsgGetBackplateModelAndBslID:
			return [][]byte{response(t, backplate.MsgBackplateModelAndBslID, []byte("Backplate-5.0"))}
		}
		return nil
	}
}

// newTestEngine returns an engine marked running so stage functions can be
// driven directly without the worker goroutine.
func newTestEngine(tr *fakeTransport, clk *fakeClock, opts ...Option) *Engine {
	e := New(tr, clk, opts...)
	e.running.Store(true)
	return e
}

// normalEngine returns an engine already in the Normal state with its
// periodic requests just sent.
func normalEngine(t *testing.T, tr *fakeTransport, clk *fakeClock) *Engine {
	e := newTestEngine(tr, clk)
	e.setState(StateNormal)
	e.lastKeepalive = clk.Now()
	e.lastHistorical = clk.Now()
	return e
}

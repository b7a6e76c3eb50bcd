// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

// ============================================================
// Serial Init Tests
// ============================================================

func TestSerialInit_Success(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock()
	start := clk.Now()
	e := newTestEngine(tr, clk)

	require.True(t, e.serialInit())
	assert.Equal(t, 1, tr.opens)
	assert.Equal(t, DefaultBaudRate, tr.baud)
	assert.Equal(t, 1, tr.breaks)
	assert.Equal(t, 2, tr.flushes)
	assert.Equal(t, 250*time.Millisecond, clk.Now().Sub(start))
}

func TestSerialInit_CustomBaud(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(tr, newFakeClock(), WithBaudRate(9600))

	require.True(t, e.serialInit())
	assert.Equal(t, 9600, tr.baud)
}

func TestSerialInit_OpenFailure(t *testing.T) {
	tr := &fakeTransport{openErr: errors.New("no such device")}
	e := newTestEngine(tr, newFakeClock())

	assert.False(t, e.serialInit())
	assert.Equal(t, 0, tr.breaks)
}

func TestSerialInit_ReopenClosesFirst(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(tr, newFakeClock())

	require.True(t, e.serialInit())
	assert.Equal(t, 0, tr.closes)

	// Leave half a frame in the parser; a re-open must discard it
	tr.queue(response(t, backplate.MsgResponseASCII, []byte("x"))[:6])
	_, _, ok := e.receive()
	require.True(t, ok)
	require.Equal(t, 6, e.parser.Buffered())

	require.True(t, e.serialInit())
	assert.Equal(t, 2, tr.opens)
	assert.Equal(t, 1, tr.closes)
	assert.Equal(t, 0, e.parser.Buffered())
}

// ============================================================
// Burst Stage Tests
// ============================================================

func TestBurst_Success(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = backplateResponder(t)
	e := newTestEngine(tr, newFakeClock())

	require.True(t, e.burst())
	assert.Equal(t, []backplate.MessageType{backplate.MsgReset, backplate.MsgFetPresenceAck}, tr.sent())
	assert.Equal(t, fetPresencePayload, tr.commands[1].Payload)
}

func TestBurst_TimeoutWithoutBreak(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = func(cmd backplate.Frame) [][]byte {
		return [][]byte{response(t, backplate.MsgFetPresenceData, fetPresencePayload)}
	}
	clk := newFakeClock()
	start := clk.Now()
	e := newTestEngine(tr, clk)

	assert.False(t, e.burst())
	assert.GreaterOrEqual(t, clk.Now().Sub(start), DefaultBurstTimeout)
	assert.Equal(t, 0, tr.countSent(backplate.MsgFetPresenceAck))
}

func TestBurst_BreakWithoutFetPresence(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = func(cmd backplate.Frame) [][]byte {
		return [][]byte{response(t, backplate.MsgResponseASCII, []byte(backplate.BreakMarker))}
	}
	clk := newFakeClock()
	start := clk.Now()
	e := newTestEngine(tr, clk)

	assert.False(t, e.burst())
	// BRK ends the stage immediately even though it fails
	assert.Less(t, clk.Now().Sub(start), DefaultBurstTimeout)
	assert.Equal(t, 0, tr.countSent(backplate.MsgFetPresenceAck))
}

func TestBurst_OtherASCIIIsNotBreak(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = func(cmd backplate.Frame) [][]byte {
		return [][]byte{
			response(t, backplate.MsgFetPresenceData, fetPresencePayload),
			response(t, backplate.MsgResponseASCII, []byte("BRKX")),
		}
	}
	e := newTestEngine(tr, newFakeClock())

	assert.False(t, e.burst())
}

func TestBurst_FramesSplitAcrossReads(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = func(cmd backplate.Frame) [][]byte {
		var stream []byte
		stream = append(stream, 0x00, 0x7F)
		stream = append(stream, response(t, backplate.MsgFetPresenceData, fetPresencePayload)...)
		stream = append(stream, response(t, backplate.MsgResponseASCII, []byte(backplate.BreakMarker))...)

		var chunks [][]byte
		for len(stream) > 0 {
			n := min(5, len(stream))
			chunks = append(chunks, stream[:n])
			stream = stream[n:]
		}
		return chunks
	}
	e := newTestEngine(tr, newFakeClock())

	assert.True(t, e.burst())
}

func TestBurst_WriteFailure(t *testing.T) {
	tr := &fakeTransport{writeErr: errors.New("broken pipe")}
	e := newTestEngine(tr, newFakeClock())

	assert.False(t, e.burst())
}

func TestBurst_ReadFailure(t *testing.T) {
	tr := &fakeTransport{readErr: errors.New("device gone")}
	clk := newFakeClock()
	start := clk.Now()
	e := newTestEngine(tr, clk)

	assert.False(t, e.burst())
	assert.Equal(t, time.Duration(0), clk.Now().Sub(start))
}

func TestBurst_AbortsWhenStopped(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, newFakeClock())

	assert.False(t, e.burst())
	assert.Equal(t, []backplate.MessageType{backplate.MsgReset}, tr.sent())
}

// ============================================================
// Info Gathering Tests
// ============================================================

func TestGatherInfo_Success(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = backplateResponder(t)
	e := newTestEngine(tr, newFakeClock())

	require.True(t, e.gatherInfo())
	assert.Equal(t, DeviceInfo{
		Version:       "1.0.26",
		BuildInfo:     "2019-04-05 19:24:34",
		ModelAndBslID: "Backplate-5.0",
	}, e.Info())
	assert.Equal(t, []backplate.MessageType{
		backplate.MsgGetTfeVersion,
		backplate.MsgGetTfeBuildInfo,
		backplate.MsgGetBackplateModelAndBslID,
	}, tr.sent())
}

func TestGatherInfo_StopsAtFirstMissingReply(t *testing.T) {
	tr := &fakeTransport{}
	healthy := backplateResponder(t)
	tr.respond = func(cmd backplate.Frame) [][]byte {
		if cmd.ID == backplate.MsgGetTfeBuildInfo {
			return nil
		}
		return healthy(cmd)
	}
	clk := newFakeClock()
	start := clk.Now()
	e := newTestEngine(tr, clk)

	assert.False(t, e.gatherInfo())
	assert.Equal(t, []backplate.MessageType{backplate.MsgGetTfeVersion, backplate.MsgGetTfeBuildInfo}, tr.sent())
	assert.GreaterOrEqual(t, clk.Now().Sub(start), DefaultInfoTimeout)
	assert.Equal(t, DeviceInfo{}, e.Info())
}

func TestGatherInfo_IgnoresUnrelatedFrames(t *testing.T) {
	tr := &fakeTransport{}
	healthy := backplateResponder(t)
	tr.respond = func(cmd backplate.Frame) [][]byte {
		noise := response(t, backplate.MsgAmbientLightSensor, []byte{0x10, 0x00})
		return append([][]byte{noise}, healthy(cmd)...)
	}
	e := newTestEngine(tr, newFakeClock())

	require.True(t, e.gatherInfo())
	assert.Equal(t, "1.0.26", e.Info().Version)
}

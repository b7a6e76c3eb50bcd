// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustResponse(t *testing.T, id MessageType, payload []byte) []byte {
	t.Helper()
	data, err := EncodeResponse(id, payload)
	require.NoError(t, err)
	return data
}

// ============================================================
// Framing Tests
// ============================================================

func TestParser_SingleFrame(t *testing.T) {
	p := NewParser()
	frames := p.Feed(mustResponse(t, MsgResponseASCII, []byte(BreakMarker)))

	require.Len(t, frames, 1)
	assert.Equal(t, MsgResponseASCII, frames[0].ID)
	assert.Equal(t, RoleResponse, frames[0].Role)
	assert.Equal(t, []byte(BreakMarker), frames[0].Payload)
	assert.Equal(t, 0, p.Buffered())
}

func TestParser_SplitAnywhere(t *testing.T) {
	data := mustResponse(t, MsgTempHumidityData, []byte{0xE8, 0x08, 0xC2, 0x01})

	for split := 1; split < len(data); split++ {
		p := NewParser()
		assert.Empty(t, p.Feed(data[:split]), "split=%d first half", split)

		frames := p.Feed(data[split:])
		require.Len(t, frames, 1, "split=%d second half", split)
		assert.Equal(t, MsgTempHumidityData, frames[0].ID)
	}
}

func TestParser_ByteAtATime(t *testing.T) {
	data := mustResponse(t, MsgBackplateState, make([]byte, 16))
	p := NewParser()

	var frames []Frame
	for _, b := range data {
		frames = append(frames, p.Feed([]byte{b})...)
	}

	require.Len(t, frames, 1)
	assert.Equal(t, MsgBackplateState, frames[0].ID)
}

func TestParser_TwoFramesInOrder(t *testing.T) {
	first := mustResponse(t, MsgResponseASCII, []byte(BreakMarker))
	second := mustResponse(t, MsgFetPresenceData, make([]byte, 13))

	p := NewParser()
	frames := p.Feed(append(append([]byte(nil), first...), second...))

	require.Len(t, frames, 2)
	assert.Equal(t, MsgResponseASCII, frames[0].ID)
	assert.Equal(t, MsgFetPresenceData, frames[1].ID)
}

func TestParser_CorruptFrameThenRecovery(t *testing.T) {
	corrupt := mustResponse(t, MsgResponseASCII, []byte(BreakMarker))
	corrupt[len(corrupt)-1] ^= 0xFF

	p := NewParser()
	assert.Empty(t, p.Feed(corrupt))
	assert.Equal(t, uint64(1), p.Stats().CRCRejects)

	frames := p.Feed(mustResponse(t, MsgTempHumidityData, []byte{0xE8, 0x08, 0xC2, 0x01}))
	require.Len(t, frames, 1)
	assert.Equal(t, MsgTempHumidityData, frames[0].ID)
}

func TestParser_CorruptAndValidInOneFeed(t *testing.T) {
	corrupt := mustResponse(t, MsgPirMotionEvent, []byte{1, 0, 2, 0})
	corrupt[len(corrupt)-2] ^= 0x55
	valid := mustResponse(t, MsgProximityEvent, []byte{3, 0, 4, 0})

	p := NewParser()
	frames := p.Feed(append(append([]byte(nil), corrupt...), valid...))

	require.Len(t, frames, 1)
	assert.Equal(t, MsgProximityEvent, frames[0].ID)
}

func TestParser_LeadingNoise(t *testing.T) {
	data := append([]byte{0x00, 0x13, 0xD5, 0xAA, 0x42}, mustResponse(t, MsgAmbientLightSensor, []byte{0x2C, 0x01})...)

	p := NewParser()
	frames := p.Feed(data)

	require.Len(t, frames, 1)
	assert.Equal(t, MsgAmbientLightSensor, frames[0].ID)
	assert.Equal(t, uint64(5), p.Stats().NoiseDropped)
}

func TestParser_FalsePreambleInsidePayload(t *testing.T) {
	// A payload that itself contains the preamble must not confuse framing
	payload := []byte{0xD5, 0xD5, 0xAA, 0x96, 0x01, 0x00}
	p := NewParser()
	frames := p.Feed(mustResponse(t, MsgRawADCData, payload))

	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0].Payload)
}

// ============================================================
// Buffer Retention Tests
// ============================================================

func TestParser_NoPreambleKeepsTail(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}))
	assert.Equal(t, 3, p.Buffered())
}

func TestParser_ShortInputKept(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed([]byte{0x01, 0x02}))
	assert.Equal(t, 2, p.Buffered())
}

func TestParser_PreambleStraddlesReads(t *testing.T) {
	data := mustResponse(t, MsgResponseASCII, []byte("1.0"))
	noise := []byte{0x11, 0x22, 0x33, 0x44, 0x55}

	p := NewParser()
	// Noise plus the first three preamble bytes: no full preamble yet
	assert.Empty(t, p.Feed(append(append([]byte(nil), noise...), data[:3]...)))
	assert.Equal(t, 3, p.Buffered())

	frames := p.Feed(data[3:])
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("1.0"), frames[0].Payload)
}

func TestParser_WaitsForDeclaredLength(t *testing.T) {
	data := mustResponse(t, MsgBufferedSensorData, make([]byte, 40))

	p := NewParser()
	assert.Empty(t, p.Feed(data[:20]))
	assert.Equal(t, 20, p.Buffered())
	assert.Len(t, p.Feed(data[20:]), 1)
	assert.Equal(t, 0, p.Buffered())
}

func TestParser_Reset(t *testing.T) {
	data := mustResponse(t, MsgResponseASCII, []byte(BreakMarker))

	p := NewParser()
	p.Feed(data[:6])
	p.Reset()
	assert.Equal(t, 0, p.Buffered())

	// The remainder alone is not a frame
	assert.Empty(t, p.Feed(data[6:]))
}

// ============================================================
// Real-world Capture Tests
// ============================================================

func TestParser_RealWorldStream(t *testing.T) {
	stream := []byte{
		0x00, 0x00, 0x00,
		0xD5, 0xD5, 0xAA, 0x96, 0x01, 0x00, 0x1C, 0x00,
		0x31, 0x2E, 0x30, 0x2E, 0x32, 0x36, 0x20, 0x32, 0x30, 0x31, 0x39, 0x2D, 0x30, 0x34,
		0x2D, 0x30, 0x35, 0x20, 0x31, 0x39, 0x3A, 0x32, 0x34, 0x3A, 0x33, 0x34, 0x20, 0x4B,
		0x2B, 0x71,
		0xD5, 0xD5, 0xAA, 0x96, 0x04, 0x00, 0x0D, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x83, 0x51,
	}

	p := NewParser()
	frames := p.Feed(stream)

	require.Len(t, frames, 2)
	assert.Equal(t, MsgResponseASCII, frames[0].ID)
	assert.Equal(t, "1.0.26 2019-04-05 19:24:34 K", string(frames[0].Payload))
	assert.Equal(t, MsgFetPresenceData, frames[1].ID)
	assert.Len(t, frames[1].Payload, 13)

	stats := p.Stats()
	assert.Equal(t, uint64(len(stream)), stats.BytesFed)
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, uint64(3), stats.NoiseDropped)
	assert.Equal(t, uint64(0), stats.CRCRejects)
}

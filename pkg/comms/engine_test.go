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
// State Machine Tests
// ============================================================

func TestStateString(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "SerialInit", StateSerialInit.String())
	assert.Equal(t, "Burst", StateBurst.String())
	assert.Equal(t, "InfoGathering", StateInfoGathering.String())
	assert.Equal(t, "Normal", StateNormal.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestNew_Idle(t *testing.T) {
	e := New(&fakeTransport{}, newFakeClock())
	assert.Equal(t, StateIdle, e.State())

	_, ok := e.Sensors()
	assert.False(t, ok)
}

func TestTick_FullBringUp(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = backplateResponder(t)
	e := newTestEngine(tr, newFakeClock())
	e.setState(StateSerialInit)

	e.tick()
	require.Equal(t, StateBurst, e.State())
	e.tick()
	require.Equal(t, StateInfoGathering, e.State())
	e.tick()
	require.Equal(t, StateNormal, e.State())

	assert.Equal(t, []backplate.MessageType{
		backplate.MsgReset,
		backplate.MsgFetPresenceAck,
		backplate.MsgGetTfeVersion,
		backplate.MsgGetTfeBuildInfo,
		backplate.MsgGetBackplateModelAndBslID,
	}, tr.sent())
	assert.Equal(t, "1.0.26", e.Info().Version)

	// First Normal tick sends both periodic requests
	e.tick()
	assert.Equal(t, 1, tr.countSent(backplate.MsgPeriodicStatusRequest))
	assert.Equal(t, 1, tr.countSent(backplate.MsgGetHistoricalDataBuffers))
}

func TestTick_OpenFailureBacksOff(t *testing.T) {
	tr := &fakeTransport{openErr: errors.New("permission denied")}
	clk := newFakeClock()
	e := newTestEngine(tr, clk)
	e.setState(StateSerialInit)

	e.tick()
	assert.Equal(t, StateSerialInit, e.State())
	assert.Equal(t, 1, tr.opens)

	// Still inside the backoff window
	clk.Advance(DefaultBackoff - time.Second)
	e.tick()
	assert.Equal(t, 1, tr.opens)

	clk.Advance(time.Second)
	e.tick()
	assert.Equal(t, 2, tr.opens)
	assert.Equal(t, uint64(2), e.Stats().HandshakeFailures)
}

func TestTick_BurstFailureRestartsFromSerialInit(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock()
	e := newTestEngine(tr, clk, WithBackoff(10*time.Second))
	e.setState(StateSerialInit)

	e.tick()
	require.Equal(t, StateBurst, e.State())

	e.tick() // silent device: burst times out
	assert.Equal(t, StateSerialInit, e.State())

	e.tick()
	assert.Equal(t, 1, tr.opens, "retried before backoff elapsed")

	clk.Advance(10 * time.Second)
	e.tick()
	assert.Equal(t, 2, tr.opens)
	assert.Equal(t, 1, tr.closes)
	assert.Equal(t, StateBurst, e.State())
}

func TestTick_InfoFailureRestartsFromSerialInit(t *testing.T) {
	tr := &fakeTransport{}
	healthy := backplateResponder(t)
	tr.respond = func(cmd backplate.Frame) [][]byte {
		if cmd.ID == backplate.MsgGetBackplateModelAndBslID {
			return nil
		}
		return healthy(cmd)
	}
	e := newTestEngine(tr, newFakeClock())
	e.setState(StateInfoGathering)

	e.tick()
	assert.Equal(t, StateSerialInit, e.State())
	assert.Equal(t, uint64(1), e.Stats().HandshakeFailures)
}

func TestTick_NormalReadErrorRestarts(t *testing.T) {
	tr := &fakeTransport{}
	clk := newFakeClock()
	e := normalEngine(t, tr, clk)

	tr.readErr = errors.New("device unplugged")
	e.tick()
	assert.Equal(t, StateSerialInit, e.State())
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestStartStop(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = backplateResponder(t)
	e := New(tr, newFakeClock())

	e.Start()
	e.Start() // no-op

	require.Eventually(t, func() bool { return e.State() == StateNormal }, 5*time.Second, time.Millisecond)

	e.Stop()
	assert.Equal(t, StateIdle, e.State())

	tr.mu.Lock()
	assert.False(t, tr.isOpen)
	assert.Equal(t, 1, tr.opens)
	tr.mu.Unlock()

	e.Stop() // no-op
}

func TestStop_IsPrompt(t *testing.T) {
	tr := &fakeTransport{}
	e := New(tr, newFakeClock())

	e.Start()
	require.Eventually(t, func() bool { return tr.countSent(backplate.MsgReset) > 0 }, 5*time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, StateIdle, e.State())
}

func TestRestartAfterStop(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = backplateResponder(t)
	e := New(tr, newFakeClock())

	e.Start()
	require.Eventually(t, func() bool { return e.State() == StateNormal }, 5*time.Second, time.Millisecond)
	e.Stop()

	e.Start()
	require.Eventually(t, func() bool { return e.State() == StateNormal }, 5*time.Second, time.Millisecond)
	e.Stop()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 2, tr.opens)
	assert.Equal(t, 2, tr.closes)
}

func TestEnginesAreIndependent(t *testing.T) {
	a := New(&fakeTransport{}, newFakeClock())
	b := New(&fakeTransport{}, newFakeClock())

	a.AddFrameHandler(func(backplate.MessageType, []byte) {})
	assert.Len(t, a.frameHandlers, 1)
	assert.Empty(t, b.frameHandlers)
}

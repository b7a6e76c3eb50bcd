// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package comms drives the backplate link.
//
// An Engine owns one worker goroutine that opens the transport, performs the
// reset burst and info handshakes, then polls the backplate and fans decoded
// frames out to registered handlers. Any failure sends the engine back to
// serial initialization after a fixed backoff; nothing in here is fatal.
package comms

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

// FrameHandler receives a decoded frame of a subscribed category
type FrameHandler func(f backplate.Frame)

// RawHandler receives every decoded frame as its id and payload
type RawHandler func(id backplate.MessageType, payload []byte)

// Reading is the latest temperature/humidity sample
type Reading struct {
	TemperatureC    float64
	HumidityPercent float64
	Updated         time.Time
}

// DeviceInfo holds the replies collected during info gathering
type DeviceInfo struct {
	Version       string
	BuildInfo     string
	ModelAndBslID string
}

// Stats are engine counters
type Stats struct {
	Parser             backplate.ParserStats
	FramesDispatched   uint64
	KeepalivesSent     uint64
	HistoricalRequests uint64
	BufferAcks         uint64
	HandshakeFailures  uint64
}

// Engine runs the backplate state machine on a dedicated goroutine
type Engine struct {
	transport Transport
	clock     Clock
	cfg       config

	// Worker-owned
	parser         *backplate.Parser
	readBuf        []byte
	open           bool
	retryAt        time.Time
	lastKeepalive  time.Time
	lastHistorical time.Time

	state   atomic.Int32
	running atomic.Bool

	lifecycleMu sync.Mutex
	done        chan struct{}

	sensorMu    sync.Mutex
	reading     Reading
	haveReading bool
	info        DeviceInfo
	stats       Stats

	handlerMu      sync.RWMutex
	tempHandlers   []FrameHandler
	motionHandlers []FrameHandler
	frameHandlers  []RawHandler
}

// New creates an engine bound to a transport and clock. It does nothing until
// Start is called.
func New(t Transport, c Clock, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		transport: t,
		clock:     c,
		cfg:       cfg,
		parser:    backplate.NewParser(),
		readBuf:   make([]byte, 256),
	}
}

// Start launches the worker goroutine. Calling Start on a running engine is a no-op.
func (e *Engine) Start() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.running.CompareAndSwap(false, true) {
		return
	}

	e.done = make(chan struct{})
	e.retryAt = time.Time{}
	e.setState(StateSerialInit)
	go e.run(e.done)
}

// Stop clears the running flag and waits for the worker to exit.
// Stop must not be called from a handler.
func (e *Engine) Stop() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.running.CompareAndSwap(true, false) {
		return
	}
	<-e.done
}

// State returns the current state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	if old := State(e.state.Swap(int32(s))); old != s {
		glog.V(1).Infof("comms: %s -> %s", old, s)
	}
}

func (e *Engine) run(done chan struct{}) {
	defer close(done)

	for e.running.Load() {
		e.tick()
		e.clock.Sleep(e.cfg.tickInterval)
	}

	e.closeTransport()
	e.setState(StateIdle)
	glog.Info("comms: stopped")
}

// tick advances the state machine by one step
func (e *Engine) tick() {
	switch e.State() {
	case StateSerialInit:
		if e.clock.Now().Before(e.retryAt) {
			return
		}
		if !e.serialInit() {
			e.fail("serial init")
			return
		}
		e.setState(StateBurst)

	case StateBurst:
		if !e.burst() {
			e.fail("burst stage")
			return
		}
		e.setState(StateInfoGathering)

	case StateInfoGathering:
		if !e.gatherInfo() {
			e.fail("info gathering")
			return
		}
		e.lastKeepalive = time.Time{}
		e.lastHistorical = time.Time{}
		glog.Info("comms: backplate link up")
		e.setState(StateNormal)

	case StateNormal:
		if !e.poll() {
			e.fail("polling")
		}
	}
}

// fail schedules a fresh bring-up after the backoff
func (e *Engine) fail(stage string) {
	e.retryAt = e.clock.Now().Add(e.cfg.backoff)
	glog.Errorf("comms: %s failed, retrying in %s", stage, e.cfg.backoff)

	e.sensorMu.Lock()
	e.stats.HandshakeFailures++
	e.sensorMu.Unlock()

	e.setState(StateSerialInit)
}

// Temperature returns the cached temperature in °C (0 before the first sample)
func (e *Engine) Temperature() float64 {
	e.sensorMu.Lock()
	defer e.sensorMu.Unlock()
	return e.reading.TemperatureC
}

// Humidity returns the cached relative humidity in % (0 before the first sample)
func (e *Engine) Humidity() float64 {
	e.sensorMu.Lock()
	defer e.sensorMu.Unlock()
	return e.reading.HumidityPercent
}

// Sensors returns the cached reading and whether one has been received
func (e *Engine) Sensors() (Reading, bool) {
	e.sensorMu.Lock()
	defer e.sensorMu.Unlock()
	return e.reading, e.haveReading
}

// Info returns the device info collected by the last successful handshake
func (e *Engine) Info() DeviceInfo {
	e.sensorMu.Lock()
	defer e.sensorMu.Unlock()
	return e.info
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	e.sensorMu.Lock()
	defer e.sensorMu.Unlock()
	return e.stats
}

// AddTemperatureHandler subscribes to TEMP_HUMIDITY_DATA frames
func (e *Engine) AddTemperatureHandler(h FrameHandler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.tempHandlers = append(e.tempHandlers, h)
}

// AddMotionHandler subscribes to PIR and proximity frames
func (e *Engine) AddMotionHandler(h FrameHandler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.motionHandlers = append(e.motionHandlers, h)
}

// AddFrameHandler subscribes to every decoded frame
func (e *Engine) AddFrameHandler(h RawHandler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.frameHandlers = append(e.frameHandlers, h)
}

// ClearTemperatureHandlers removes all temperature handlers
func (e *Engine) ClearTemperatureHandlers() {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.tempHandlers = nil
}

// ClearMotionHandlers removes all motion handlers
func (e *Engine) ClearMotionHandlers() {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.motionHandlers = nil
}

// ClearFrameHandlers removes all generic handlers
func (e *Engine) ClearFrameHandlers() {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.frameHandlers = nil
}

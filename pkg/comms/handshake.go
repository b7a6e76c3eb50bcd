// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import (
	"bytes"

	"github.com/golang/glog"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

// infoQuery pairs a GET_* command with the reply it expects
type infoQuery struct {
	command  backplate.MessageType
	response backplate.MessageType
	store    func(*DeviceInfo, string)
}

var infoQueries = []infoQuery{
	{backplate.MsgGetTfeVersion, backplate.MsgTfeVersion, func(d *DeviceInfo, s string) { d.Version = s }},
	{backplate.MsgGetTfeBuildInfo, backplate.MsgTfeBuildInfo, func(d *DeviceInfo, s string) { d.BuildInfo = s }},
	{backplate.MsgGetBackplateModelAndBslID, backplate.MsgBackplateModelAndBslID, func(d *DeviceInfo, s string) { d.ModelAndBslID = s }},
}

// serialInit (re)opens the transport and sends a line break
func (e *Engine) serialInit() bool {
	e.closeTransport()
	e.parser.Reset()

	if err := e.transport.Open(e.cfg.baudRate); err != nil {
		glog.Errorf("comms: open at %d baud: %v", e.cfg.baudRate, err)
		return false
	}
	e.open = true

	if err := e.transport.Flush(); err != nil {
		glog.Errorf("comms: flush: %v", err)
		return false
	}
	if err := e.transport.SendBreak(); err != nil {
		glog.Errorf("comms: send break: %v", err)
		return false
	}
	e.clock.Sleep(breakSettle)
	if err := e.transport.Flush(); err != nil {
		glog.Errorf("comms: flush: %v", err)
		return false
	}

	glog.V(1).Infof("comms: serial initialized at %d baud", e.cfg.baudRate)
	return true
}

func (e *Engine) closeTransport() {
	if !e.open {
		return
	}
	if err := e.transport.Close(); err != nil {
		glog.Warningf("comms: close: %v", err)
	}
	e.open = false
}

// burst resets the backplate and waits for the BRK marker that ends its data
// dump. The FET presence payload seen during the burst is acknowledged.
func (e *Engine) burst() bool {
	if !e.send(backplate.MsgReset, nil) {
		return false
	}

	start := e.clock.Now()
	sawBreak, sawFet := false, false
	var fetPresence []byte

	for !sawBreak && e.running.Load() {
		if e.clock.Now().Sub(start) >= e.cfg.burstTimeout {
			glog.Error("comms: burst stage timed out")
			break
		}

		n, frames, ok := e.receive()
		if !ok {
			return false
		}
		if n == 0 {
			e.clock.Sleep(e.cfg.pollInterval)
			continue
		}

		for _, f := range frames {
			if f.ID == backplate.MsgFetPresenceData {
				fetPresence = f.Payload
				sawFet = true
				glog.V(1).Infof("comms: FET presence data received (%d bytes)", len(f.Payload))
			}
			if f.ID == backplate.MsgResponseASCII && bytes.Equal(f.Payload, []byte(backplate.BreakMarker)) {
				sawBreak = true
				break
			}
		}
	}

	if !sawBreak {
		glog.Error("comms: handshake error: did not receive BRK")
		return false
	}
	if !sawFet {
		glog.Error("comms: handshake error: did not receive FET presence data")
		return false
	}

	return e.send(backplate.MsgFetPresenceAck, fetPresence)
}

// gatherInfo runs the three info queries in order
func (e *Engine) gatherInfo() bool {
	var info DeviceInfo

	for _, q := range infoQueries {
		payload, ok := e.query(q.command, q.response)
		if !ok {
			glog.Errorf("comms: no %s reply to %s", q.response, q.command)
			return false
		}
		q.store(&info, backplate.DecodeASCII(payload))
	}

	e.sensorMu.Lock()
	e.info = info
	e.sensorMu.Unlock()

	glog.Infof("comms: backplate version %q build %q model %q", info.Version, info.BuildInfo, info.ModelAndBslID)
	return true
}

// query sends command and waits up to the info timeout for a response frame
func (e *Engine) query(command, response backplate.MessageType) ([]byte, bool) {
	if !e.send(command, nil) {
		return nil, false
	}

	start := e.clock.Now()
	for e.running.Load() {
		if e.clock.Now().Sub(start) >= e.cfg.infoTimeout {
			break
		}

		n, frames, ok := e.receive()
		if !ok {
			return nil, false
		}
		if n == 0 {
			e.clock.Sleep(e.cfg.pollInterval)
			continue
		}

		for _, f := range frames {
			glog.V(2).Infof("comms: info reply %s len=%d", f.ID, len(f.Payload))
			if f.ID == response {
				return f.Payload, true
			}
		}
	}

	return nil, false
}

// send encodes and writes one command frame
func (e *Engine) send(id backplate.MessageType, payload []byte) bool {
	data, err := backplate.EncodeCommand(id, payload)
	if err != nil {
		glog.Errorf("comms: encode %s: %v", id, err)
		return false
	}

	if _, err := e.transport.Write(data); err != nil {
		glog.Errorf("comms: write %s: %v", id, err)
		return false
	}

	glog.V(2).Infof("comms: tx %s len=%d", id, len(payload))
	return true
}

// receive performs one non-blocking read and feeds the parser.
// It returns the number of bytes read and the frames they completed.
func (e *Engine) receive() (int, []backplate.Frame, bool) {
	n, err := e.transport.Read(e.readBuf)
	if err != nil {
		glog.Errorf("comms: read: %v", err)
		return 0, nil, false
	}
	if n == 0 {
		return 0, nil, true
	}

	frames := e.parser.Feed(e.readBuf[:n])

	e.sensorMu.Lock()
	e.stats.Parser = e.parser.Stats()
	e.sensorMu.Unlock()

	return n, frames, true
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import (
	"github.com/golang/glog"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

// poll is one Normal-state tick: periodic requests, one read, dispatch.
// Returns false on a transport error.
func (e *Engine) poll() bool {
	now := e.clock.Now()

	if e.lastKeepalive.IsZero() || now.Sub(e.lastKeepalive) >= e.cfg.keepaliveInterval {
		if !e.send(backplate.MsgPeriodicStatusRequest, nil) {
			return false
		}
		e.lastKeepalive = now
		e.countSent(&e.stats.KeepalivesSent)
	}

	if e.lastHistorical.IsZero() || now.Sub(e.lastHistorical) >= e.cfg.historicalInterval {
		if !e.send(backplate.MsgGetHistoricalDataBuffers, nil) {
			return false
		}
		e.lastHistorical = now
		e.countSent(&e.stats.HistoricalRequests)
	}

	_, frames, ok := e.receive()
	if !ok {
		return false
	}

	for _, f := range frames {
		if !e.dispatch(f) {
			return false
		}
	}
	return true
}

func (e *Engine) countSent(counter *uint64) {
	e.sensorMu.Lock()
	*counter++
	e.sensorMu.Unlock()
}

// dispatch decodes f, updates the cache and invokes handlers: the category
// handlers first, then every generic handler, each in registration order.
func (e *Engine) dispatch(f backplate.Frame) bool {
	glog.V(2).Infof("comms: rx %s len=%d", f.ID, len(f.Payload))

	e.handlerMu.RLock()
	temp := e.tempHandlers
	motion := e.motionHandlers
	generic := e.frameHandlers
	e.handlerMu.RUnlock()

	switch {
	case f.ID == backplate.MsgTempHumidityData:
		if th, err := backplate.DecodeTempHumidity(f.Payload); err == nil {
			e.sensorMu.Lock()
			e.reading = Reading{
				TemperatureC:    th.TemperatureC,
				HumidityPercent: th.HumidityPercent,
				Updated:         e.clock.Now(),
			}
			e.haveReading = true
			e.sensorMu.Unlock()
			glog.V(1).Infof("comms: temperature %.2f C, humidity %.1f %%", th.TemperatureC, th.HumidityPercent)
		} else {
			glog.Warningf("comms: %s: %v", f.ID, err)
		}
		for _, h := range temp {
			h(f)
		}

	case backplate.IsMotionType(f.ID):
		for _, h := range motion {
			h(f)
		}
	}

	for _, h := range generic {
		h(f.ID, f.Payload)
	}

	e.countSent(&e.stats.FramesDispatched)

	if f.ID == backplate.MsgEndOfBuffers {
		if !e.send(backplate.MsgAcknowledgeEndOfBuffers, nil) {
			return false
		}
		e.countSent(&e.stats.BufferAcks)
	}
	return true
}

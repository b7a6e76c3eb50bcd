// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import (
	"fmt"
	"strings"
	"time"
)

// FormatFrame formats a frame received at ts into a human-readable string
func FormatFrame(ts time.Time, f Frame) string {
	timestamp := ts.Format("15:04:05.000")

	result := fmt.Sprintf("[%s] %s (0x%04X) len=%d\n", timestamp, f.ID, uint16(f.ID), len(f.Payload))
	result += FormatPayload(f.ID, f.Payload)

	return result
}

// FormatPayload formats a payload based on its message type.
// Unknown or undersized payloads fall back to a hex dump.
func FormatPayload(id MessageType, payload []byte) string {
	if len(payload) == 0 {
		return "  (no payload)\n"
	}

	switch id {
	case MsgResponseASCII:
		return fmt.Sprintf("  ASCII: %q\n", DecodeASCII(payload))

	case MsgTempHumidityData, MsgBufferedSensorData:
		if th, err := DecodeTempHumidity(payload); err == nil {
			return fmt.Sprintf("  Temperature: %.2f°C, Humidity: %.1f%%\n", th.TemperatureC, th.HumidityPercent)
		}

	case MsgPirMotionEvent:
		if pair, err := DecodeSensorPair(id, payload); err == nil {
			if !pair.Active() {
				return "  PIR: Cleared\n"
			}
			return fmt.Sprintf("  PIR: Motion Detected (vals: %d, %d)\n", pair.Value1, pair.Value2)
		}

	case MsgProximitySensorHighDetail:
		if pair, err := DecodeSensorPair(id, payload); err == nil {
			if !pair.Active() {
				return "  Proximity: Idle\n"
			}
			return fmt.Sprintf("  Proximity: Event Detected (vals: %d, %d)\n", pair.Value1, pair.Value2)
		}

	case MsgPirDataRaw, MsgProximityEvent, MsgProxSensor:
		if pair, err := DecodeSensorPair(id, payload); err == nil {
			if pair.Single {
				return fmt.Sprintf("  Value: %d\n", pair.Value1)
			}
			return fmt.Sprintf("  Val1: %d, Val2: %d\n", pair.Value1, pair.Value2)
		}

	case MsgAmbientLightSensor:
		if lux, err := DecodeAmbientLight(payload); err == nil {
			return fmt.Sprintf("  Ambient Light: %d lux\n", lux)
		}

	case MsgBackplateState:
		if st, err := DecodeBackplateState(payload); err == nil {
			return fmt.Sprintf("  Vin: %.2fV, Vop: %.3fV, Vbat: %.3fV\n", st.InputVolts, st.OutputVolts, st.BatteryVolts)
		}

	case MsgRawADCData:
		if adc, err := DecodeRawADC(payload); err == nil {
			return fmt.Sprintf("  PIR: %d, AL_IR: %d, AL_VIS: %d\n", adc.PIR, adc.AmbientIR, adc.AmbientVisible)
		}

	default:
		if IsInfoType(id) {
			return fmt.Sprintf("  Info: %q\n", DecodeASCII(payload))
		}
	}

	return FormatHex(payload)
}

// FormatHex dumps payload bytes, 16 per row
func FormatHex(payload []byte) string {
	var sb strings.Builder
	sb.WriteString("  Payload: ")
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n           ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}

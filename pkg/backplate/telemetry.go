// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload is returned when a payload is too small for its message type
var ErrShortPayload = errors.New("payload too short")

// TempHumidity is a temperature/humidity sample.
// Wire format: int16 centi-degrees C, uint16 per-mille RH (both LE).
type TempHumidity struct {
	TemperatureC    float64
	HumidityPercent float64
}

// SensorPair holds the two signed values carried by PIR and proximity frames
type SensorPair struct {
	Value1 int16
	Value2 int16
	Single bool // only Value1 was present on the wire
}

// Active reports whether the pair describes a detection (non-zero values)
func (s SensorPair) Active() bool {
	return s.Value1 != 0 || s.Value2 != 0
}

// BackplateState carries the supply rail voltages
type BackplateState struct {
	InputVolts   float64
	OutputVolts  float64
	BatteryVolts float64
}

// RawADC holds the raw sensor ADC channels
type RawADC struct {
	PIR            uint16
	AmbientIR      uint16
	AmbientVisible uint16
}

func needPayload(payload []byte, n int, what string) error {
	if len(payload) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortPayload, what, n, len(payload))
	}
	return nil
}

// DecodeTempHumidity decodes TEMP_HUMIDITY_DATA and BUFFERED_SENSOR_DATA payloads
func DecodeTempHumidity(payload []byte) (TempHumidity, error) {
	if err := needPayload(payload, 4, "temperature/humidity"); err != nil {
		return TempHumidity{}, err
	}
	tempCC := int16(binary.LittleEndian.Uint16(payload[0:]))
	humPM := binary.LittleEndian.Uint16(payload[2:])
	return TempHumidity{
		TemperatureC:    float64(tempCC) / 100.0,
		HumidityPercent: float64(humPM) / 10.0,
	}, nil
}

// DecodeSensorPair decodes PIR and proximity payloads.
// PROX_SENSOR frames are sometimes only two bytes long.
func DecodeSensorPair(id MessageType, payload []byte) (SensorPair, error) {
	if len(payload) >= 4 {
		return SensorPair{
			Value1: int16(binary.LittleEndian.Uint16(payload[0:])),
			Value2: int16(binary.LittleEndian.Uint16(payload[2:])),
		}, nil
	}
	if id == MsgProxSensor && len(payload) >= 2 {
		return SensorPair{
			Value1: int16(binary.LittleEndian.Uint16(payload[0:])),
			Single: true,
		}, nil
	}
	return SensorPair{}, needPayload(payload, 4, id.String())
}

// DecodeAmbientLight decodes AMBIENT_LIGHT_SENSOR payloads into lux
func DecodeAmbientLight(payload []byte) (uint16, error) {
	if err := needPayload(payload, 2, "ambient light"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(payload), nil
}

// DecodeBackplateState decodes BACKPLATE_STATE payloads
func DecodeBackplateState(payload []byte) (BackplateState, error) {
	if err := needPayload(payload, 16, "backplate state"); err != nil {
		return BackplateState{}, err
	}
	return BackplateState{
		InputVolts:   float64(binary.LittleEndian.Uint16(payload[8:])) / 100.0,
		OutputVolts:  float64(binary.LittleEndian.Uint16(payload[10:])) / 1000.0,
		BatteryVolts: float64(binary.LittleEndian.Uint16(payload[12:])) / 1000.0,
	}, nil
}

// DecodeRawADC decodes RAW_ADC_DATA payloads
func DecodeRawADC(payload []byte) (RawADC, error) {
	if err := needPayload(payload, 14, "raw ADC"); err != nil {
		return RawADC{}, err
	}
	return RawADC{
		PIR:            binary.LittleEndian.Uint16(payload[0:]),
		AmbientIR:      binary.LittleEndian.Uint16(payload[10:]),
		AmbientVisible: binary.LittleEndian.Uint16(payload[12:]),
	}, nil
}

// DecodeASCII renders an ASCII reply, replacing non-printable bytes with '.'
func DecodeASCII(payload []byte) string {
	out := make([]byte, len(payload))
	for i, b := range payload {
		if b >= 0x20 && b < 0x7F {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// IsMotionType reports whether id carries PIR or proximity readings
func IsMotionType(id MessageType) bool {
	switch id {
	case MsgPirDataRaw, MsgPirMotionEvent, MsgProxSensor, MsgProximityEvent, MsgProximitySensorHighDetail:
		return true
	}
	return false
}

// IsInfoType reports whether id is a reply to one of the GET_* info queries
func IsInfoType(id MessageType) bool {
	switch id {
	case MsgTfeVersion, MsgTfeBuildInfo, MsgBackplateModelAndBslID:
		return true
	}
	return false
}

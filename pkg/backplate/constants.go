// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package backplate implements the wire protocol spoken between the host and
// the thermostat backplate micro-controller.
//
// Frames carry a 16-bit message id and a length-prefixed payload protected by
// a CRC-16 (XMODEM variant). Host commands start with a 3-byte preamble,
// device responses with a 4-byte preamble. The package provides frame
// encoding/decoding, a resynchronizing stream parser, telemetry payload
// decoders and human-readable formatting.
package backplate

// Frame layout
const (
	CommandPreambleSize  = 3
	ResponsePreambleSize = 4

	IDSize     = 2
	LengthSize = 2
	CRCSize    = 2

	// MaxPayloadSize is the largest payload the 16-bit length field can describe
	MaxPayloadSize = 0xFFFF

	// MinResponseFrameSize is preamble + id + length + CRC for a response
	MinResponseFrameSize = ResponsePreambleSize + IDSize + LengthSize + CRCSize
)

var (
	commandPreamble  = [CommandPreambleSize]byte{0xD5, 0xAA, 0x96}
	responsePreamble = [ResponsePreambleSize]byte{0xD5, 0xD5, 0xAA, 0x96}
)

// MessageType identifies a frame's command or response id
type MessageType uint16

// Message types - Device responses (Backplate → Host)
const (
	MsgNull                      MessageType = 0x0000
	MsgResponseASCII             MessageType = 0x0001
	MsgTempHumidityData          MessageType = 0x0002
	MsgFetPresenceData           MessageType = 0x0004
	MsgPirDataRaw                MessageType = 0x0005
	MsgProxSensor                MessageType = 0x0007
	MsgAmbientLightSensor        MessageType = 0x000A
	MsgBackplateState            MessageType = 0x000B
	MsgRawADCData                MessageType = 0x000C
	MsgTfeVersion                MessageType = 0x0018
	MsgTfeBuildInfo              MessageType = 0x0019
	MsgBackplateModelAndBslID    MessageType = 0x001D
	MsgBufferedSensorData        MessageType = 0x0022
	MsgPirMotionEvent            MessageType = 0x0023
	MsgProximityEvent            MessageType = 0x0025
	MsgProximitySensorHighDetail MessageType = 0x0027
	MsgEndOfBuffers              MessageType = 0x002F
)

// Message types - Host commands (Host → Backplate)
const (
	MsgFetControl                         MessageType = 0x0082
	MsgPeriodicStatusRequest              MessageType = 0x0083
	MsgFetPresenceAck                     MessageType = 0x008F
	MsgGetTfeID                           MessageType = 0x0090
	MsgGetTfeVersion                      MessageType = 0x0098
	MsgGetTfeBuildInfo                    MessageType = 0x0099
	MsgGetBslVersion                      MessageType = 0x009B
	MsgGetCoProcessorBslVersionInfo       MessageType = 0x009C
	MsgGetBackplateModelAndBslID          MessageType = 0x009D
	MsgGetHardwareVersionAndBackplateName MessageType = 0x009E
	MsgGetSerialNumber                    MessageType = 0x009F
	MsgGetHistoricalDataBuffers           MessageType = 0x00A2
	MsgAcknowledgeEndOfBuffers            MessageType = 0x00A3
	MsgTemperatureLock                    MessageType = 0x00B1
	MsgSetPowerStealMode                  MessageType = 0x00C0
	MsgReset                              MessageType = 0x00FF
)

// BreakMarker is the ASCII payload that terminates the post-reset burst
const BreakMarker = "BRK"

var messageNames = map[MessageType]string{
	MsgNull:                      "NULL",
	MsgResponseASCII:             "RESPONSE_ASCII",
	MsgTempHumidityData:          "TEMP_HUMIDITY_DATA",
	MsgFetPresenceData:           "FET_PRESENCE_DATA",
	MsgPirDataRaw:                "PIR_DATA_RAW",
	MsgProxSensor:                "PROX_SENSOR",
	MsgAmbientLightSensor:        "AMBIENT_LIGHT_SENSOR",
	MsgBackplateState:            "BACKPLATE_STATE",
	MsgRawADCData:                "RAW_ADC_DATA",
	MsgTfeVersion:                "TFE_VERSION",
	MsgTfeBuildInfo:              "TFE_BUILD_INFO",
	MsgBackplateModelAndBslID:    "BACKPLATE_MODEL_AND_BSL_ID",
	MsgBufferedSensorData:        "BUFFERED_SENSOR_DATA",
	MsgPirMotionEvent:            "PIR_MOTION_EVENT",
	MsgProximityEvent:            "PROXIMITY_EVENT",
	MsgProximitySensorHighDetail: "PROXIMITY_SENSOR_HIGH_DETAIL",
	MsgEndOfBuffers:              "END_OF_BUFFERS",

	MsgFetControl:                         "FET_CONTROL",
	MsgPeriodicStatusRequest:              "PERIODIC_STATUS_REQUEST",
	MsgFetPresenceAck:                     "FET_PRESENCE_ACK",
	MsgGetTfeID:                           "GET_TFE_ID",
	MsgGetTfeVersion:                      "GET_TFE_VERSION",
	MsgGetTfeBuildInfo:                    "GET_TFE_BUILD_INFO",
	MsgGetBslVersion:                      "GET_BSL_VERSION",
	MsgGetCoProcessorBslVersionInfo:       "GET_COPROCESSOR_BSL_VERSION_INFO",
	MsgGetBackplateModelAndBslID:          "GET_BACKPLATE_MODEL_AND_BSL_ID",
	MsgGetHardwareVersionAndBackplateName: "GET_HARDWARE_VERSION_AND_BACKPLATE_NAME",
	MsgGetSerialNumber:                    "GET_SERIAL_NUMBER",
	MsgGetHistoricalDataBuffers:           "GET_HISTORICAL_DATA_BUFFERS",
	MsgAcknowledgeEndOfBuffers:            "ACKNOWLEDGE_END_OF_BUFFERS",
	MsgTemperatureLock:                    "TEMPERATURE_LOCK",
	MsgSetPowerStealMode:                  "SET_POWER_STEAL_MODE",
	MsgReset:                              "RESET",
}

// String returns the human-readable name for a message type
func (m MessageType) String() string {
	if name, ok := messageNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseMessageType looks a message type up by its name (as returned by String)
func ParseMessageType(name string) (MessageType, bool) {
	for id, n := range messageNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

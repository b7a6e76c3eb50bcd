// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Role selects the preamble a frame is framed with
type Role int

const (
	// RoleCommand frames travel host → backplate
	RoleCommand Role = iota
	// RoleResponse frames travel backplate → host
	RoleResponse
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case RoleCommand:
		return "command"
	case RoleResponse:
		return "response"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Preamble returns the fixed start-of-frame bytes for the role
func (r Role) Preamble() []byte {
	if r == RoleCommand {
		return commandPreamble[:]
	}
	return responsePreamble[:]
}

// MinFrameSize is the size of a frame with an empty payload
func (r Role) MinFrameSize() int {
	return len(r.Preamble()) + IDSize + LengthSize + CRCSize
}

// Frame decoding errors
var (
	ErrTooShort        = errors.New("frame too short")
	ErrBadPreamble     = errors.New("bad preamble")
	ErrBadCRC          = errors.New("CRC mismatch")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Frame is a CRC-verified protocol message
type Frame struct {
	Role    Role
	ID      MessageType
	Payload []byte
}

// Encode serializes the frame to wire format
func (f Frame) Encode() ([]byte, error) {
	return Encode(f.Role, f.ID, f.Payload)
}

// Encode builds a complete wire frame:
// preamble | id (LE) | length (LE) | payload | CRC (LE).
// The CRC covers everything after the preamble.
func Encode(role Role, id MessageType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	preamble := role.Preamble()
	buf := make([]byte, 0, len(preamble)+IDSize+LengthSize+len(payload)+CRCSize)
	buf = append(buf, preamble...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(id))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)

	crc := CalculateCRC(buf[len(preamble):])
	buf = binary.LittleEndian.AppendUint16(buf, crc)

	return buf, nil
}

// EncodeCommand builds a host → backplate frame
func EncodeCommand(id MessageType, payload []byte) ([]byte, error) {
	return Encode(RoleCommand, id, payload)
}

// EncodeResponse builds a backplate → host frame
func EncodeResponse(id MessageType, payload []byte) ([]byte, error) {
	return Encode(RoleResponse, id, payload)
}

// MustEncodeCommand is EncodeCommand for payloads known to fit.
// Panics on encoding error.
func MustEncodeCommand(id MessageType, payload []byte) []byte {
	data, err := EncodeCommand(id, payload)
	if err != nil {
		panic(fmt.Sprintf("backplate: encode error: %v", err))
	}
	return data
}

// Decode validates a candidate frame and extracts id and payload.
// data must start at the preamble; bytes after the CRC are ignored.
func Decode(role Role, data []byte) (Frame, error) {
	preamble := role.Preamble()
	n := len(preamble)

	if len(data) < role.MinFrameSize() {
		return Frame{}, fmt.Errorf("%w: %d bytes (min %d)", ErrTooShort, len(data), role.MinFrameSize())
	}

	if !bytes.Equal(data[:n], preamble) {
		return Frame{}, fmt.Errorf("%w: % X", ErrBadPreamble, data[:n])
	}

	payloadLen := int(binary.LittleEndian.Uint16(data[n+IDSize:]))
	crcPos := n + IDSize + LengthSize + payloadLen
	if len(data) < crcPos+CRCSize {
		return Frame{}, fmt.Errorf("%w: declared payload %d bytes, have %d", ErrTooShort, payloadLen, len(data)-n-IDSize-LengthSize-CRCSize)
	}

	received := binary.LittleEndian.Uint16(data[crcPos:])
	calculated := CalculateCRC(data[n:crcPos])
	if received != calculated {
		return Frame{}, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrBadCRC, calculated, received)
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[n+IDSize+LengthSize:crcPos])

	return Frame{
		Role:    role,
		ID:      MessageType(binary.LittleEndian.Uint16(data[n:])),
		Payload: payload,
	}, nil
}

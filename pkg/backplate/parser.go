// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backplate

import (
	"bytes"
	"encoding/binary"
)

// ParserStats counts what the parser has done with the bytes it was fed
type ParserStats struct {
	BytesFed     uint64
	Frames       uint64
	CRCRejects   uint64 // candidates with a matching preamble but bad CRC
	NoiseDropped uint64 // bytes discarded while hunting for a preamble
}

// Parser reassembles response frames from an unstructured byte stream.
//
// Bytes are accumulated until a full frame is available. Leading bytes that
// are not part of a preamble are discarded, and a candidate that fails CRC
// validation is skipped one byte at a time so the parser resynchronizes on
// the next preamble. Frames split across Feed calls are reassembled.
type Parser struct {
	buffer []byte
	stats  ParserStats
}

// NewParser creates a stream parser for backplate responses
func NewParser() *Parser {
	return &Parser{
		buffer: make([]byte, 0, 256),
	}
}

// Reset discards any buffered bytes
func (p *Parser) Reset() {
	p.buffer = p.buffer[:0]
}

// Buffered returns the number of bytes waiting for the rest of a frame
func (p *Parser) Buffered() int {
	return len(p.buffer)
}

// Stats returns the parser counters
func (p *Parser) Stats() ParserStats {
	return p.stats
}

// Feed appends data to the reassembly buffer and returns every complete,
// CRC-valid frame now available, in arrival order.
func (p *Parser) Feed(data []byte) []Frame {
	var frames []Frame

	p.buffer = append(p.buffer, data...)
	p.stats.BytesFed += uint64(len(data))

	preamble := responsePreamble[:]

	for {
		idx := bytes.Index(p.buffer, preamble)
		if idx < 0 {
			// Keep a possible partial preamble at the tail
			if keep := ResponsePreambleSize - 1; len(p.buffer) > keep {
				p.stats.NoiseDropped += uint64(len(p.buffer) - keep)
				p.consume(len(p.buffer) - keep)
			}
			return frames
		}

		if idx > 0 {
			p.stats.NoiseDropped += uint64(idx)
			p.consume(idx)
		}

		if len(p.buffer) < MinResponseFrameSize {
			return frames
		}

		payloadLen := int(binary.LittleEndian.Uint16(p.buffer[ResponsePreambleSize+IDSize:]))
		total := MinResponseFrameSize + payloadLen
		if len(p.buffer) < total {
			return frames
		}

		frame, err := Decode(RoleResponse, p.buffer[:total])
		if err != nil {
			// Drop the first preamble byte and search again
			p.stats.CRCRejects++
			p.consume(1)
			continue
		}

		frames = append(frames, frame)
		p.stats.Frames++
		p.consume(total)
	}
}

// consume removes n bytes from the front of the buffer
func (p *Parser) consume(n int) {
	remaining := copy(p.buffer, p.buffer[n:])
	p.buffer = p.buffer[:remaining]
}

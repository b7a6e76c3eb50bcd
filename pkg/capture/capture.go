// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw backplate link traffic and plays it back.
//
// A capture file is a CBOR sequence of records, each a map
// {0: unix microseconds, 1: direction, 2: bytes}.
package capture

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction tells which way captured bytes travelled
type Direction uint8

const (
	// DirRx is backplate → host
	DirRx Direction = 0
	// DirTx is host → backplate
	DirTx Direction = 1
)

// String returns "rx" or "tx"
func (d Direction) String() string {
	switch d {
	case DirRx:
		return "rx"
	case DirTx:
		return "tx"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// Record is one chunk of link traffic
type Record struct {
	Time      time.Time
	Direction Direction
	Data      []byte
}

type wireRecord struct {
	Micros    int64     `cbor:"0,keyasint"`
	Direction Direction `cbor:"1,keyasint"`
	Data      []byte    `cbor:"2,keyasint"`
}

// Writer appends records to a capture stream. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	now func() time.Time
}

// NewWriter creates a capture writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		enc: cbor.NewEncoder(w),
		now: time.Now,
	}
}

// Write records data travelling in dir, stamped with the current time
func (w *Writer) Write(dir Direction, data []byte) error {
	return w.WriteRecord(Record{Time: w.now(), Direction: dir, Data: data})
}

// WriteRecord appends a fully specified record
func (w *Writer) WriteRecord(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(wireRecord{
		Micros:    r.Time.UnixMicro(),
		Direction: r.Direction,
		Data:      r.Data,
	}); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	return nil
}

// Reader iterates over the records of a capture stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a capture reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	var wr wireRecord
	if err := r.dec.Decode(&wr); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: read record: %w", err)
	}

	if wr.Direction != DirRx && wr.Direction != DirTx {
		return Record{}, fmt.Errorf("capture: invalid direction %d", wr.Direction)
	}

	return Record{
		Time:      time.UnixMicro(wr.Micros),
		Direction: wr.Direction,
		Data:      wr.Data,
	}, nil
}

// ReadAll returns every remaining record
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

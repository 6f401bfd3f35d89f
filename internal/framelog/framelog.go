// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package framelog records raw MAVLink frames to a CBOR sequence file and
// reads them back for replay.
package framelog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/lumen/pkg/mavlink"
	"github.com/fxamacker/cbor/v2"
)

// Direction tells whether a frame was received or sent
type Direction uint8

// Direction values
const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "out"
	}
	return "in"
}

// Record is one logged frame
type Record struct {
	TimestampNs int64     `cbor:"0,keyasint"`
	Direction   Direction `cbor:"1,keyasint"`
	Raw         []byte    `cbor:"2,keyasint"`
}

// Time returns the record timestamp
func (r Record) Time() time.Time {
	return time.Unix(0, r.TimestampNs)
}

// Writer appends records to a CBOR sequence. Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	now    func() time.Time
}

// NewWriter creates a writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		enc: cbor.NewEncoder(w),
		now: time.Now,
	}
}

// Create creates (or truncates) a recording file
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame log: %w", err)
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Record logs one raw frame with the current time
func (w *Writer) Record(dir Direction, raw []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := Record{
		TimestampNs: w.now().UnixNano(),
		Direction:   dir,
		Raw:         raw,
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write frame log record: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the writer owns one
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Reader reads records from a CBOR sequence
type Reader struct {
	dec    *cbor.Decoder
	closer io.Closer
}

// NewReader creates a reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Open opens a recording file
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame log: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the log
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read frame log record: %w", err)
	}
	return rec, nil
}

// Close closes the underlying file, if the reader owns one
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Entry is a record together with its decoded frame
type Entry struct {
	Record
	Frame *mavlink.Frame
}

// ReadFrames reads every record in dir and decodes it. Records that do not
// hold exactly one valid frame are skipped and counted.
func ReadFrames(r *Reader, dir Direction) ([]Entry, int, error) {
	var entries []Entry
	skipped := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, skipped, nil
		}
		if err != nil {
			return entries, skipped, err
		}
		if rec.Direction != dir {
			continue
		}

		frames, errs := mavlink.NewDecoder().Decode(rec.Raw)
		if len(errs) > 0 || len(frames) != 1 {
			skipped++
			continue
		}
		entries = append(entries, Entry{Record: rec, Frame: frames[0]})
	}
}

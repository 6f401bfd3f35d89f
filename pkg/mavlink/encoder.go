// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"errors"
	"fmt"
)

// ErrUnknownMessage is returned for message ids this package has no
// definition for
var ErrUnknownMessage = errors.New("unknown message id")

// Encoder encodes frames for one channel, assigning sequence numbers.
// An Encoder is not safe for concurrent use.
type Encoder struct {
	sequence uint8
}

// NewEncoder creates a new MAVLink frame encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode stamps the frame with the channel's next sequence number and
// encodes it to wire format.
func (e *Encoder) Encode(f *Frame) ([]byte, error) {
	f.Sequence = e.sequence
	data, err := EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	e.sequence++
	return data, nil
}

// EncodeFrame creates a complete wire-formatted MAVLink v2 frame using the
// frame's own sequence number. Signing is not supported; the signed flag is
// cleared on output.
func EncodeFrame(f *Frame) ([]byte, error) {
	if f.Message == nil {
		return nil, fmt.Errorf("frame has no message")
	}
	id := f.Message.MessageID()
	def, ok := lookupMessage(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, id)
	}

	payload := truncatePayload(f.Message.Marshal())
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	data := make([]byte, 0, HeaderSize+len(payload)+ChecksumSize)
	data = append(data,
		StartByte,
		uint8(len(payload)),
		f.IncompatFlags&^IncompatFlagSigned,
		f.CompatFlags,
		f.Sequence,
		f.Sender.SystemID,
		f.Sender.ComponentID,
		uint8(id),
		uint8(id>>8),
		uint8(id>>16),
	)
	data = append(data, payload...)

	// Checksum covers everything after the start byte, then CRC_EXTRA
	crc := accumulateCRC(crcInitial, data[1:])
	crc = accumulateCRCByte(crc, def.crcExtra)

	// Append CRC (little-endian)
	data = append(data, byte(crc&0xFF), byte(crc>>8))

	return data, nil
}

// MustEncodeFrame encodes a frame using its own sequence number.
// Panics on encoding error (use EncodeFrame for error handling).
func MustEncodeFrame(f *Frame) []byte {
	data, err := EncodeFrame(f)
	if err != nil {
		panic(fmt.Sprintf("mavlink: encode error: %v", err))
	}
	return data
}

// truncatePayload drops trailing zero bytes, keeping at least one byte.
func truncatePayload(payload []byte) []byte {
	n := len(payload)
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	return payload[:n]
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"errors"
	"fmt"
	"time"
)

// ErrChecksum is returned when a frame's checksum does not match its contents
var ErrChecksum = errors.New("CRC mismatch")

// Decoder implements the MAVLink v2 frame decoder state machine
type Decoder struct {
	state         int
	buffer        []byte // Checksummed bytes: header without start byte, then payload
	length        int
	msgIDBytes    int
	signatureLeft int
	msgID         uint32
	frame         *Frame
	crc           uint16
	rawBuffer     []byte // Accumulate raw bytes including framing
	lastFrame     []byte // Raw bytes of the last completed frame
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, 0, HeaderSize+MaxPayloadSize),
		rawBuffer: make([]byte, 0, MaxFrameSize),
		lastFrame: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.length = 0
	d.msgIDBytes = 0
	d.signatureLeft = 0
	d.msgID = 0
	d.frame = nil
	d.crc = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the accumulated raw bytes of the frame in progress
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// LastFrameBytes returns the raw bytes of the last frame DecodeByte
// returned. The slice is reused by the next completed frame.
func (d *Decoder) LastFrameBytes() []byte {
	return d.lastFrame
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if decoding fails; the decoder is then back to idle.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if d.state == stateIdle {
		// Waiting for start byte
		if b == StartByte {
			d.Reset()
			d.rawBuffer = append(d.rawBuffer, b)
			d.frame = &Frame{}
			d.state = stateLength
		}
		return nil, nil
	}

	d.rawBuffer = append(d.rawBuffer, b)

	switch d.state {
	case stateLength:
		d.length = int(b)
		d.buffer = append(d.buffer, b)
		d.state = stateIncompat
		return nil, nil

	case stateIncompat:
		if b&^IncompatFlagSigned != 0 {
			d.Reset()
			return nil, fmt.Errorf("unsupported incompat flags: 0x%02X", b)
		}
		d.frame.IncompatFlags = b
		d.buffer = append(d.buffer, b)
		d.state = stateCompat
		return nil, nil

	case stateCompat:
		d.frame.CompatFlags = b
		d.buffer = append(d.buffer, b)
		d.state = stateSequence
		return nil, nil

	case stateSequence:
		d.frame.Sequence = b
		d.buffer = append(d.buffer, b)
		d.state = stateSystemID
		return nil, nil

	case stateSystemID:
		d.frame.Sender.SystemID = b
		d.buffer = append(d.buffer, b)
		d.state = stateComponentID
		return nil, nil

	case stateComponentID:
		d.frame.Sender.ComponentID = b
		d.buffer = append(d.buffer, b)
		d.msgIDBytes = 0
		d.state = stateMsgID
		return nil, nil

	case stateMsgID:
		// Message id is 24-bit little-endian
		d.msgID |= uint32(b) << (d.msgIDBytes * 8)
		d.buffer = append(d.buffer, b)
		d.msgIDBytes++
		if d.msgIDBytes == 3 {
			if d.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}
		return nil, nil

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) >= HeaderSize-1+d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b)
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b) << 8
		if d.frame.IncompatFlags&IncompatFlagSigned != 0 {
			d.signatureLeft = SignatureSize
			d.state = stateSignature
			return nil, nil
		}
		return d.finish()

	case stateSignature:
		d.signatureLeft--
		if d.signatureLeft == 0 {
			return d.finish()
		}
		return nil, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// finish validates the checksum and decodes the payload of a complete frame
func (d *Decoder) finish() (*Frame, error) {
	defer d.Reset()

	def, ok := lookupMessage(d.msgID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, d.msgID)
	}

	calculated := accumulateCRCByte(CalculateCRC(d.buffer), def.crcExtra)
	if d.crc != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrChecksum, calculated, d.crc)
	}

	// Zero-extend truncated payloads to the full message size
	payload := make([]byte, def.size)
	copy(payload, d.buffer[HeaderSize-1:])

	msg := def.newMsg()
	if err := msg.Unmarshal(payload); err != nil {
		return nil, err
	}

	d.lastFrame = append(d.lastFrame[:0], d.rawBuffer...)

	frame := d.frame
	frame.Message = msg
	frame.checksum = d.crc
	frame.timestamp = time.Now()
	return frame, nil
}

// Decode feeds data through the decoder and returns every complete frame
// along with any decode errors encountered.
func (d *Decoder) Decode(data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import "time"

// Address identifies a MAVLink endpoint
type Address struct {
	SystemID    uint8
	ComponentID uint8
}

// Frame represents a MAVLink v2 frame
type Frame struct {
	Sequence      uint8
	Sender        Address
	IncompatFlags uint8
	CompatFlags   uint8
	Message       Message

	checksum  uint16
	timestamp time.Time
}

// NewFrame creates a frame carrying msg from sender.
// The sequence number is assigned by the Encoder.
func NewFrame(sender Address, msg Message) *Frame {
	return &Frame{
		Sender:    sender,
		Message:   msg,
		timestamp: time.Now(),
	}
}

// MessageID returns the id of the carried message
func (f *Frame) MessageID() uint32 {
	if f.Message == nil {
		return 0
	}
	return f.Message.MessageID()
}

// Checksum returns the checksum received on the wire (zero for frames that
// were never decoded)
func (f *Frame) Checksum() uint16 {
	return f.checksum
}

// Timestamp returns the frame's creation or decode time
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsSigned returns true if the frame carried a signature block
func (f *Frame) IsSigned() bool {
	return f.IncompatFlags&IncompatFlagSigned != 0
}

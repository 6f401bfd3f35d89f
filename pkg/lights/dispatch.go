// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lights

import (
	"fmt"
	"iter"
	"slices"

	"github.com/Thermoquad/lumen/pkg/mavlink"
)

// DispatchError reports the frame the transport rejected. It matches
// ErrConnection with errors.Is, as well as the transport's own error.
type DispatchError struct {
	StripID uint8
	Offset  uint8
	Mode    mavlink.FillMode
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("lights: strip %d offset %d (%s) not sent: %v",
		e.StripID, e.Offset, mavlink.FormatFillMode(e.Mode), e.Err)
}

// Unwrap returns ErrConnection and the transport error
func (e *DispatchError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// Lights sends color updates to one rig
type Lights struct {
	transport Transport
	target    mavlink.Address
}

// New creates a Lights client that addresses target through transport
func New(transport Transport, target mavlink.Address) *Lights {
	return &Lights{
		transport: transport,
		target:    target,
	}
}

// Target returns the rig address frames are sent to
func (l *Lights) Target() mavlink.Address {
	return l.target
}

// SetMatrix sends every strip of the matrix in index order, stopping at the
// first strip that fails. Later strips are left untouched.
func (l *Lights) SetMatrix(matrix LightMatrix) error {
	if err := validateMatrix(matrix); err != nil {
		return err
	}
	for i, strip := range matrix.Strips {
		if err := l.sendStrip(uint8(i), strip); err != nil {
			return err
		}
	}
	return nil
}

// SetStrip sends one strip as consecutive frames of up to eight colors, in
// increasing offset order. An empty strip sends nothing. The first rejected
// frame ends the call; frames after it are never built.
func (l *Lights) SetStrip(stripID uint8, strip LightStrip) error {
	if err := validateStrip(stripID, strip); err != nil {
		return err
	}
	return l.sendStrip(stripID, strip)
}

// FollowVehicleMode hands the rig back to vehicle-state lighting. Disabling
// is a no-op: the next SetStrip or SetMatrix overrides follow mode.
func (l *Lights) FollowVehicleMode(enable bool) error {
	if !enable {
		return nil
	}
	return l.send(Encode(0, FollowVehicleMode{}))
}

func (l *Lights) sendStrip(stripID uint8, strip LightStrip) error {
	for f := range Frames(stripID, strip) {
		if err := l.send(f); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lights) send(f Frame) error {
	msg := f.Message(l.target)
	err := l.transport.QueueMessage(func(sender mavlink.Address, channel uint8) *mavlink.Frame {
		return mavlink.NewFrame(sender, msg)
	})
	if err != nil {
		return &DispatchError{StripID: f.StripID, Offset: f.Offset, Mode: f.Mode, Err: err}
	}
	return nil
}

// Frames yields the frames for a strip lazily, in increasing offset order:
// full groups of eight, then the remainder.
func Frames(stripID uint8, strip LightStrip) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for offset := 0; offset < len(strip.Lights); offset += FrameColors {
			end := min(offset+FrameColors, len(strip.Lights))
			f := Encode(stripID, IndexedColors{
				Offset: uint8(offset),
				Colors: strip.Lights[offset:end],
			})
			if !yield(f) {
				return
			}
		}
	}
}

// Chunk returns every frame for a strip
func Chunk(stripID uint8, strip LightStrip) []Frame {
	return slices.Collect(Frames(stripID, strip))
}

func validateStrip(stripID uint8, strip LightStrip) error {
	if len(strip.Lights) > MaxStripLength {
		return fmt.Errorf("%w: strip %d has %d LEDs (max %d)", ErrInvalidArgument, stripID, len(strip.Lights), MaxStripLength)
	}
	return nil
}

func validateMatrix(matrix LightMatrix) error {
	if len(matrix.Strips) > MaxStrips {
		return fmt.Errorf("%w: matrix has %d strips (max %d)", ErrInvalidArgument, len(matrix.Strips), MaxStrips)
	}
	for i, strip := range matrix.Strips {
		if err := validateStrip(uint8(i), strip); err != nil {
			return err
		}
	}
	return nil
}

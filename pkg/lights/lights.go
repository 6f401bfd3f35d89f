// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lights pushes colors to an addressable LED rig over a MAVLink
// command link.
//
// A rig is modelled as a LightMatrix of LightStrips. Strips of any length are
// split into LED_STRIP_CONFIG frames of at most eight colors each and sent in
// increasing offset order through a Transport. Dispatch stops at the first
// frame the transport rejects; frames already sent are not rolled back, so
// after a failure the rig may show a mix of old and new colors. Callers that
// need the full update should retry the whole call, which is safe because the
// same input always produces the same frames.
package lights

import (
	"errors"

	"github.com/Thermoquad/lumen/pkg/mavlink"
)

// Color is an opaque 32-bit color value, sent verbatim.
type Color uint32

// LightStrip is the target state of one physical strip.
type LightStrip struct {
	Lights []Color
}

// UniformStrip returns a strip of n LEDs all set to c.
func UniformStrip(n int, c Color) LightStrip {
	strip := LightStrip{Lights: make([]Color, n)}
	for i := range strip.Lights {
		strip.Lights[i] = c
	}
	return strip
}

// LightMatrix is the full set of strips on the rig. A strip's index is its
// identifier on the wire.
type LightMatrix struct {
	Strips []LightStrip
}

// Wire addressing limits (led_index, led_count and strip_id are uint8)
const (
	MaxStripLength = 256
	MaxStrips      = 256
)

var (
	// ErrConnection is reported when the transport did not accept a frame.
	ErrConnection = errors.New("lights: connection error")
	// ErrInvalidArgument is reported for input the wire cannot address.
	// Nothing is sent in that case.
	ErrInvalidArgument = errors.New("lights: invalid argument")
)

// Result is the outcome of a dispatch call
type Result int

// Result values
const (
	ResultSuccess Result = iota
	ResultConnectionError
	ResultInvalidArgument
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultConnectionError:
		return "Connection Error"
	case ResultInvalidArgument:
		return "Invalid Argument"
	default:
		return "Unknown"
	}
}

// ResultOf maps the error returned by a dispatch call to a Result.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrInvalidArgument):
		return ResultInvalidArgument
	default:
		return ResultConnectionError
	}
}

// BuildFunc builds a wire frame for the given sender address and channel.
type BuildFunc func(sender mavlink.Address, channel uint8) *mavlink.Frame

// Transport queues frames on the vehicle link. QueueMessage returns nil
// only if the frame was accepted for sending. Ordering between calls is the
// transport's responsibility.
type Transport interface {
	QueueMessage(build BuildFunc) error
}

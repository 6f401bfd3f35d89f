// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lights

import (
	"fmt"

	"github.com/Thermoquad/lumen/pkg/mavlink"
)

// FrameColors is the number of color slots in one frame
const FrameColors = mavlink.LEDStripMaxColors

// FillMode selects what a frame asks the rig to do. It is either
// IndexedColors or FollowVehicleMode.
type FillMode interface {
	wireMode() mavlink.FillMode
}

// IndexedColors sets up to eight LEDs starting at Offset.
type IndexedColors struct {
	Offset uint8
	Colors []Color
}

func (IndexedColors) wireMode() mavlink.FillMode { return mavlink.FillModeIndex }

// FollowVehicleMode hands the rig back to its vehicle-state driven pattern.
type FollowVehicleMode struct{}

func (FollowVehicleMode) wireMode() mavlink.FillMode { return mavlink.FillModeFollowFlightMode }

// Frame is one LED_STRIP_CONFIG message before addressing
type Frame struct {
	StripID uint8
	Mode    mavlink.FillMode
	Offset  uint8
	Count   uint8
	Colors  [FrameColors]Color
}

// Encode builds the frame for one strip. IndexedColors must carry 1 to 8
// colors; extra colors are not encoded. Slots past Count are zero.
func Encode(stripID uint8, fill FillMode) Frame {
	f := Frame{StripID: stripID}

	switch m := fill.(type) {
	case IndexedColors:
		f.Mode = m.wireMode()
		f.Offset = m.Offset
		f.Count = uint8(copy(f.Colors[:], m.Colors))
	case FollowVehicleMode:
		f.Mode = m.wireMode()
		f.Offset = 0
		f.Count = FrameColors
	default:
		panic(fmt.Sprintf("lights: unhandled fill mode %T", fill))
	}

	return f
}

// Message converts the frame to the wire message addressed to target
func (f Frame) Message(target mavlink.Address) *mavlink.LEDStripConfig {
	m := &mavlink.LEDStripConfig{
		TargetSystem:    target.SystemID,
		TargetComponent: target.ComponentID,
		FillMode:        f.Mode,
		LEDIndex:        f.Offset,
		LEDCount:        f.Count,
		StripID:         f.StripID,
	}
	for i, c := range f.Colors {
		m.Colors[i] = uint32(c)
	}
	return m
}

// Valid returns the colors carried by the frame
func (f Frame) Valid() []Color {
	if f.Mode != mavlink.FillModeIndex {
		return nil
	}
	return f.Colors[:f.Count]
}

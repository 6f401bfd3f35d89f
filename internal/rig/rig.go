// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rig simulates the lighting peripheral on the vehicle side of the
// link. It applies LED_STRIP_CONFIG frames to per-strip pixel buffers and
// colors following strips from the autopilot's heartbeat.
package rig

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/Thermoquad/lumen/pkg/mavlink"
)

// StripMode is the state of one strip on the rig
type StripMode int

// Strip modes
const (
	StripUnset StripMode = iota
	StripIndexed
	StripFollowing
)

func (m StripMode) String() string {
	switch m {
	case StripUnset:
		return "unset"
	case StripIndexed:
		return "indexed"
	case StripFollowing:
		return "following"
	default:
		return fmt.Sprintf("StripMode(%d)", int(m))
	}
}

// Vehicle state colors
const (
	ColorOff      lights.Color = 0x000000
	ColorArmed    lights.Color = 0xFF0000
	ColorActive   lights.Color = 0x00FF00
	ColorStandby  lights.Color = 0x0000FF
	ColorStarting lights.Color = 0xFFFF00
	ColorFault    lights.Color = 0xFF00FF
)

var (
	// ErrUnknownStrip is returned for frames naming a strip the rig does not have
	ErrUnknownStrip = errors.New("unknown strip")
	// ErrBadFrame is returned for LED_STRIP_CONFIG frames the rig cannot apply
	ErrBadFrame = errors.New("malformed LED_STRIP_CONFIG")
)

// Config describes the simulated rig
type Config struct {
	// Address is the rig's own system and component id
	Address        mavlink.Address
	Strips         int
	PixelsPerStrip int
	// FollowColor is shown by following strips until an autopilot is heard
	FollowColor lights.Color
}

// Strip is a snapshot of one strip
type Strip struct {
	Mode   StripMode
	Pixels []lights.Color
}

// Rig holds the state of every strip. It is safe for concurrent use.
type Rig struct {
	mu      sync.Mutex
	cfg     Config
	strips  []Strip
	vehicle *mavlink.Heartbeat
	applied uint64
	ignored uint64
}

// New creates a rig with every strip unset
func New(cfg Config) (*Rig, error) {
	if cfg.Strips < 1 || cfg.Strips > lights.MaxStrips {
		return nil, fmt.Errorf("strip count %d out of range 1..%d", cfg.Strips, lights.MaxStrips)
	}
	if cfg.PixelsPerStrip < 1 || cfg.PixelsPerStrip > lights.MaxStripLength {
		return nil, fmt.Errorf("pixels per strip %d out of range 1..%d", cfg.PixelsPerStrip, lights.MaxStripLength)
	}

	r := &Rig{cfg: cfg, strips: make([]Strip, cfg.Strips)}
	for i := range r.strips {
		r.strips[i].Pixels = make([]lights.Color, cfg.PixelsPerStrip)
	}
	return r, nil
}

// Address returns the rig's own address
func (r *Rig) Address() mavlink.Address {
	return r.cfg.Address
}

// Handle applies an inbound frame. It reports whether the lighting changed.
// Frames addressed to another system or component are ignored.
func (r *Rig) Handle(f *mavlink.Frame) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := f.Message.(type) {
	case *mavlink.Heartbeat:
		return r.noteHeartbeat(m), nil
	case *mavlink.LEDStripConfig:
		if !r.addressed(m) {
			r.ignored++
			return false, nil
		}
		if err := r.apply(m); err != nil {
			return false, err
		}
		r.applied++
		return true, nil
	}
	return false, nil
}

func (r *Rig) addressed(m *mavlink.LEDStripConfig) bool {
	if m.TargetSystem != 0 && m.TargetSystem != r.cfg.Address.SystemID {
		return false
	}
	if m.TargetComponent != mavlink.ComponentIDAll && m.TargetComponent != r.cfg.Address.ComponentID {
		return false
	}
	return true
}

func (r *Rig) apply(m *mavlink.LEDStripConfig) error {
	switch m.FillMode {
	case mavlink.FillModeFollowFlightMode:
		// Follow mode hands every strip back to the vehicle
		for i := range r.strips {
			r.strips[i].Mode = StripFollowing
		}
		return nil

	case mavlink.FillModeIndex:
		if int(m.StripID) >= len(r.strips) {
			return fmt.Errorf("%w: %d", ErrUnknownStrip, m.StripID)
		}
		if m.LEDCount == 0 || int(m.LEDCount) > lights.FrameColors {
			return fmt.Errorf("%w: led_count %d", ErrBadFrame, m.LEDCount)
		}

		strip := &r.strips[m.StripID]
		if strip.Mode != StripIndexed {
			clear(strip.Pixels)
		}
		strip.Mode = StripIndexed

		for i := 0; i < int(m.LEDCount); i++ {
			pos := int(m.LEDIndex) + i
			if pos >= len(strip.Pixels) {
				break
			}
			strip.Pixels[pos] = lights.Color(m.Colors[i])
		}
		return nil

	default:
		return fmt.Errorf("%w: fill mode %d", ErrBadFrame, m.FillMode)
	}
}

// noteHeartbeat records autopilot state. Reports a change only when a
// following strip would show a different color.
func (r *Rig) noteHeartbeat(hb *mavlink.Heartbeat) bool {
	if !hb.IsAutopilot() {
		return false
	}
	before := r.vehicleColor()
	v := *hb
	r.vehicle = &v
	return r.following() && before != r.vehicleColor()
}

func (r *Rig) following() bool {
	for _, s := range r.strips {
		if s.Mode == StripFollowing {
			return true
		}
	}
	return false
}

// VehicleColor is the color following strips show for the current vehicle state
func (r *Rig) VehicleColor() lights.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vehicleColor()
}

func (r *Rig) vehicleColor() lights.Color {
	if r.vehicle == nil {
		return r.cfg.FollowColor
	}
	return StateColor(*r.vehicle)
}

// StateColor maps an autopilot heartbeat to a lighting color
func StateColor(hb mavlink.Heartbeat) lights.Color {
	switch hb.SystemStatus {
	case mavlink.StateCritical, mavlink.StateEmergency:
		return ColorFault
	}
	if hb.BaseMode&mavlink.ModeFlagSafetyArmed != 0 {
		return ColorArmed
	}
	switch hb.SystemStatus {
	case mavlink.StateActive:
		return ColorActive
	case mavlink.StateStandby:
		return ColorStandby
	case mavlink.StateBoot, mavlink.StateCalibrating:
		return ColorStarting
	default:
		return ColorOff
	}
}

// Strips returns a copy of every strip's state
func (r *Rig) Strips() []Strip {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Strip, len(r.strips))
	for i, s := range r.strips {
		out[i] = Strip{Mode: s.Mode, Pixels: append([]lights.Color(nil), s.Pixels...)}
	}
	return out
}

// Pixels returns the colors to show on every strip: unset strips are dark,
// following strips show the vehicle color
func (r *Rig) Pixels() [][]lights.Color {
	r.mu.Lock()
	defer r.mu.Unlock()

	follow := r.vehicleColor()
	out := make([][]lights.Color, len(r.strips))
	for i, s := range r.strips {
		px := make([]lights.Color, len(s.Pixels))
		switch s.Mode {
		case StripIndexed:
			copy(px, s.Pixels)
		case StripFollowing:
			for j := range px {
				px[j] = follow
			}
		}
		out[i] = px
	}
	return out
}

// Counters returns how many LED frames were applied and ignored
func (r *Rig) Counters() (applied, ignored uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied, r.ignored
}

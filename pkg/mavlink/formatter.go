// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	id := f.MessageID()

	result := fmt.Sprintf("[%s] %s (%d) seq=%d from=%d/%d\n",
		timestamp, FormatMessageName(id), id, f.Sequence, f.Sender.SystemID, f.Sender.ComponentID)

	if f.Message != nil {
		result += FormatMessage(f.Message)
	}

	return result
}

// FormatMessageName returns the human-readable name for a message id
func FormatMessageName(id uint32) string {
	if def, ok := lookupMessage(id); ok {
		return def.name
	}
	return "UNKNOWN"
}

// FormatMessage formats a message payload based on its type
func FormatMessage(msg Message) string {
	switch m := msg.(type) {
	case *Heartbeat:
		return fmt.Sprintf("  Type: %s (%d), Autopilot: %s (%d), State: %s (%d), Version: %d\n",
			formatVehicleType(m.Type), m.Type,
			formatAutopilot(m.Autopilot), m.Autopilot,
			formatSystemState(m.SystemStatus), m.SystemStatus,
			m.MavlinkVersion)

	case *LEDStripConfig:
		result := fmt.Sprintf("  Target: %d/%d, Strip: %d, Mode: %s, Index: %d, Count: %d\n",
			m.TargetSystem, m.TargetComponent, m.StripID, FormatFillMode(m.FillMode), m.LEDIndex, m.LEDCount)
		if m.FillMode == FillModeIndex {
			n := int(m.LEDCount)
			if n > LEDStripMaxColors {
				n = LEDStripMaxColors
			}
			colors := make([]string, 0, n)
			for _, c := range m.Colors[:n] {
				colors = append(colors, fmt.Sprintf("%06X", c))
			}
			result += fmt.Sprintf("  Colors: %s\n", strings.Join(colors, " "))
		}
		return result
	}

	// Default: hex dump
	payload := msg.Marshal()
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatFillMode returns the human-readable name for a fill mode
func FormatFillMode(mode FillMode) string {
	switch mode {
	case FillModeIndex:
		return "INDEX"
	case FillModeFollowFlightMode:
		return "FOLLOW_FLIGHT_MODE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", mode)
	}
}

func formatVehicleType(t uint8) string {
	switch t {
	case TypeGeneric:
		return "GENERIC"
	case TypeQuadrotor:
		return "QUADROTOR"
	case TypeGCS:
		return "GCS"
	default:
		return "OTHER"
	}
}

func formatAutopilot(a uint8) string {
	switch a {
	case AutopilotGeneric:
		return "GENERIC"
	case AutopilotInvalid:
		return "INVALID"
	case AutopilotPX4:
		return "PX4"
	default:
		return "OTHER"
	}
}

func formatSystemState(s uint8) string {
	names := []string{"UNINIT", "BOOT", "CALIBRATING", "STANDBY", "ACTIVE", "CRITICAL", "EMERGENCY"}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyInvalidCount AnomalyType = iota
	AnomalyInvalidFillMode
	AnomalyNonZeroPadding
	AnomalyIndexOverflow
	AnomalyFollowModeShape
	AnomalyCRCError
	AnomalyDecodeError
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame validates frame contents and detects anomalies.
// Returns a slice of validation errors (empty if the frame is valid)
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	switch msg := f.Message.(type) {
	case *LEDStripConfig:
		errors = append(errors, validateLEDStripConfig(msg)...)
	}

	return errors
}

// validateLEDStripConfig validates a LED_STRIP_CONFIG payload
func validateLEDStripConfig(m *LEDStripConfig) []ValidationError {
	errors := []ValidationError{}

	switch m.FillMode {
	case FillModeIndex:
		if m.LEDCount == 0 || m.LEDCount > LEDStripMaxColors {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidCount,
				Message: fmt.Sprintf("Invalid led_count=%d (expected 1-%d)", m.LEDCount, LEDStripMaxColors),
				Details: map[string]interface{}{"count": m.LEDCount, "max": LEDStripMaxColors},
			})
			return errors
		}

		if int(m.LEDIndex)+int(m.LEDCount) > 256 {
			errors = append(errors, ValidationError{
				Type:    AnomalyIndexOverflow,
				Message: fmt.Sprintf("led_index=%d + led_count=%d exceeds 256 LEDs", m.LEDIndex, m.LEDCount),
				Details: map[string]interface{}{"index": m.LEDIndex, "count": m.LEDCount},
			})
		}

		for i := int(m.LEDCount); i < LEDStripMaxColors; i++ {
			if m.Colors[i] != 0 {
				errors = append(errors, ValidationError{
					Type:    AnomalyNonZeroPadding,
					Message: fmt.Sprintf("Color slot %d beyond led_count=%d is 0x%08X (expected 0)", i, m.LEDCount, m.Colors[i]),
					Details: map[string]interface{}{"slot": i, "count": m.LEDCount, "value": m.Colors[i]},
				})
				break
			}
		}

	case FillModeFollowFlightMode:
		nonZero := false
		for _, c := range m.Colors {
			if c != 0 {
				nonZero = true
				break
			}
		}
		if m.LEDIndex != 0 || m.LEDCount != LEDStripMaxColors || nonZero {
			errors = append(errors, ValidationError{
				Type:    AnomalyFollowModeShape,
				Message: fmt.Sprintf("Follow-mode frame has led_index=%d led_count=%d (expected 0, %d, no colors)", m.LEDIndex, m.LEDCount, LEDStripMaxColors),
				Details: map[string]interface{}{"index": m.LEDIndex, "count": m.LEDCount, "colors": nonZero},
			})
		}

	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidFillMode,
			Message: fmt.Sprintf("Invalid fill_mode=%d", m.FillMode),
			Details: map[string]interface{}{"fill_mode": uint8(m.FillMode)},
		})
	}

	return errors
}

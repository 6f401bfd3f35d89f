// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	UnknownMessages uint64
	DecodeErrors    uint64
	Heartbeats      uint64
	LEDFrames       uint64
	FollowFrames    uint64
	Anomalies       uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a frame and its errors
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksum):
			s.CRCErrors++
		case errors.Is(decodeErr, ErrUnknownMessage):
			s.UnknownMessages++
		default:
			s.DecodeErrors++
		}
		return
	}

	switch m := frame.Message.(type) {
	case *Heartbeat:
		s.Heartbeats++
	case *LEDStripConfig:
		if m.FillMode == FillModeFollowFlightMode {
			s.FollowFrames++
		} else {
			s.LEDFrames++
		}
	}

	if len(validationErrors) > 0 {
		s.Anomalies += uint64(len(validationErrors))
		return
	}
	s.ValidFrames++
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.ErrorCount()) / elapsed
	}
}

// ErrorCount returns the number of frames that failed decoding or validation
func (s *Statistics) ErrorCount() uint64 {
	return s.CRCErrors + s.UnknownMessages + s.DecodeErrors + s.Anomalies
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	result += fmt.Sprintf("  Heartbeats:       %5d\n", s.Heartbeats)
	result += fmt.Sprintf("  LED Frames:       %5d\n", s.LEDFrames)
	result += fmt.Sprintf("  Follow Frames:    %5d\n", s.FollowFrames)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.UnknownMessages > 0 {
		result += fmt.Sprintf("Unknown Msgs:    %8d\n", s.UnknownMessages)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}

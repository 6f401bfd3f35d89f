// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

func decodeAll(t *testing.T, data []byte) *Frame {
	t.Helper()
	decoder := NewDecoder()
	var decoded *Frame
	for _, b := range data {
		f, err := decoder.DecodeByte(b)
		if err != nil {
			t.Fatalf("Decoder error: %v", err)
		}
		if f != nil {
			decoded = f
		}
	}
	if decoded == nil {
		t.Fatal("Decoder did not produce a frame")
	}
	return decoded
}

func testLEDFrame() *Frame {
	return NewFrame(Address{SystemID: 1, ComponentID: ComponentIDLights}, &LEDStripConfig{
		Colors:          [LEDStripMaxColors]uint32{0xFF0000, 0x00FF00, 0x0000FF},
		TargetSystem:    1,
		TargetComponent: ComponentIDAutopilot,
		FillMode:        FillModeIndex,
		LEDIndex:        16,
		LEDCount:        3,
		StripID:         2,
	})
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x6F91, // CRC-16/MCRF4XX check value
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CalculateCRC() = 0x%04X, want 0x%04X", crc, tt.expected)
			}
		})
	}
}

func TestCRCExtra_Heartbeat(t *testing.T) {
	extra, ok := MessageCRCExtra(MsgIDHeartbeat)
	if !ok {
		t.Fatal("HEARTBEAT should be a known message")
	}
	if extra != 50 {
		t.Errorf("HEARTBEAT CRC_EXTRA = %d, want 50", extra)
	}
}

func TestCRCExtra_FieldOrderMatters(t *testing.T) {
	a := CRCExtra("LED_STRIP_CONFIG", ledStripConfigFields)
	swapped := append([]Field{}, ledStripConfigFields...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	b := CRCExtra("LED_STRIP_CONFIG", swapped)
	if a == b {
		t.Errorf("CRC_EXTRA should change when field order changes (both 0x%02X)", a)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeFrame_Header(t *testing.T) {
	f := testLEDFrame()
	f.Sequence = 42

	data, err := EncodeFrame(f)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	if data[0] != StartByte {
		t.Errorf("frame should start with StartByte (0x%02X), got 0x%02X", StartByte, data[0])
	}
	if int(data[1]) != len(data)-HeaderSize-ChecksumSize {
		t.Errorf("length byte %d does not match payload length %d", data[1], len(data)-HeaderSize-ChecksumSize)
	}
	if data[4] != 42 {
		t.Errorf("sequence = %d, want 42", data[4])
	}
	if data[5] != 1 || data[6] != ComponentIDLights {
		t.Errorf("sender = %d/%d, want 1/%d", data[5], data[6], ComponentIDLights)
	}
	id := uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16
	if id != MsgIDLEDStripConfig {
		t.Errorf("message id = %d, want %d", id, MsgIDLEDStripConfig)
	}
}

func TestEncodeFrame_TruncatesTrailingZeros(t *testing.T) {
	tests := []struct {
		name       string
		msg        Message
		payloadLen int
	}{
		{
			name:       "empty heartbeat keeps one byte",
			msg:        &Heartbeat{},
			payloadLen: 1,
		},
		{
			name:       "heartbeat with version",
			msg:        &Heartbeat{Type: TypeGCS, Autopilot: AutopilotInvalid, MavlinkVersion: Version},
			payloadLen: heartbeatSize,
		},
		{
			name: "led frame with strip 0 drops strip_id",
			msg: &LEDStripConfig{
				Colors:          [LEDStripMaxColors]uint32{0x112233},
				TargetSystem:    1,
				TargetComponent: 1,
				LEDCount:        1,
			},
			payloadLen: ledStripConfigSize - 1,
		},
		{
			name: "led frame with non-zero strip keeps everything",
			msg: &LEDStripConfig{
				Colors:   [LEDStripMaxColors]uint32{0x112233},
				LEDCount: 1,
				StripID:  3,
			},
			payloadLen: ledStripConfigSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeFrame(NewFrame(Address{SystemID: 1, ComponentID: 1}, tt.msg))
			if err != nil {
				t.Fatalf("EncodeFrame failed: %v", err)
			}
			if int(data[1]) != tt.payloadLen {
				t.Errorf("payload length = %d, want %d", data[1], tt.payloadLen)
			}
			if len(data) != HeaderSize+tt.payloadLen+ChecksumSize {
				t.Errorf("frame length = %d, want %d", len(data), HeaderSize+tt.payloadLen+ChecksumSize)
			}
		})
	}
}

func TestEncoder_SequenceIncrements(t *testing.T) {
	enc := NewEncoder()
	for i := 0; i < 300; i++ {
		data, err := enc.Encode(testLEDFrame())
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if data[4] != uint8(i) {
			t.Fatalf("frame %d: sequence = %d, want %d", i, data[4], uint8(i))
		}
	}
}

type bogusMessage struct{}

func (bogusMessage) MessageID() uint32         { return 0xABCDE }
func (bogusMessage) Marshal() []byte           { return []byte{1} }
func (bogusMessage) Unmarshal(_ []byte) error { return nil }

func TestEncodeFrame_UnknownMessage(t *testing.T) {
	_, err := EncodeFrame(NewFrame(Address{}, bogusMessage{}))
	if !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestMustEncodeFrame_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustEncodeFrame should panic on a frame without message")
		}
	}()
	MustEncodeFrame(&Frame{})
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "heartbeat",
			msg: &Heartbeat{
				CustomMode:     0x01020304,
				Type:           TypeQuadrotor,
				Autopilot:      AutopilotPX4,
				BaseMode:       0x81,
				SystemStatus:   StateActive,
				MavlinkVersion: Version,
			},
		},
		{
			name: "zero heartbeat",
			msg:  &Heartbeat{},
		},
		{
			name: "indexed colors",
			msg:  testLEDFrame().Message,
		},
		{
			name: "follow flight mode",
			msg: &LEDStripConfig{
				TargetSystem:    1,
				TargetComponent: 1,
				FillMode:        FillModeFollowFlightMode,
				LEDCount:        LEDStripMaxColors,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrame(Address{SystemID: 7, ComponentID: 9}, tt.msg)
			f.Sequence = 200
			data, err := EncodeFrame(f)
			if err != nil {
				t.Fatalf("EncodeFrame failed: %v", err)
			}

			decoded := decodeAll(t, data)

			if decoded.Sequence != 200 {
				t.Errorf("sequence = %d, want 200", decoded.Sequence)
			}
			if decoded.Sender != f.Sender {
				t.Errorf("sender = %+v, want %+v", decoded.Sender, f.Sender)
			}
			if decoded.MessageID() != tt.msg.MessageID() {
				t.Errorf("message id = %d, want %d", decoded.MessageID(), tt.msg.MessageID())
			}
			if !bytes.Equal(decoded.Message.Marshal(), tt.msg.Marshal()) {
				t.Errorf("payload mismatch:\n got  %X\n want %X", decoded.Message.Marshal(), tt.msg.Marshal())
			}
		})
	}
}

func TestDecode_SkipsGarbageBeforeStart(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	stream := append([]byte{0x00, 0x13, 0x37, 0xFE}, data...)

	frames, errs := NewDecoder().Decode(stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
}

func TestDecode_MultipleFrames(t *testing.T) {
	enc := NewEncoder()
	var stream []byte
	for i := 0; i < 5; i++ {
		data, err := enc.Encode(testLEDFrame())
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		stream = append(stream, data...)
	}

	frames, errs := NewDecoder().Decode(stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Sequence != uint8(i) {
			t.Errorf("frame %d: sequence = %d", i, f.Sequence)
		}
	}
}

func TestDecode_CRCMismatch(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	data[len(data)-1] ^= 0xFF

	decoder := NewDecoder()
	var lastErr error
	for _, b := range data {
		if _, err := decoder.DecodeByte(b); err != nil {
			lastErr = err
		}
	}
	if !errors.Is(lastErr, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", lastErr)
	}

	// Decoder recovers for the next frame
	if f := decodeAll(t, MustEncodeFrame(testLEDFrame())); f == nil {
		t.Error("decoder did not recover after CRC error")
	}
}

func TestDecode_CorruptedPayload(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	data[HeaderSize] ^= 0x01

	_, errs := NewDecoder().Decode(data)
	if len(errs) != 1 || !errors.Is(errs[0], ErrChecksum) {
		t.Errorf("expected one checksum error, got %v", errs)
	}
}

func TestDecode_UnknownMessage(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	data[7] = 0x55 // message id low byte

	_, errs := NewDecoder().Decode(data)
	if len(errs) != 1 || !errors.Is(errs[0], ErrUnknownMessage) {
		t.Errorf("expected one unknown message error, got %v", errs)
	}
}

func TestDecode_UnsupportedIncompatFlags(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	data[2] = 0x02

	_, errs := NewDecoder().Decode(data)
	if len(errs) == 0 {
		t.Fatal("expected an error for unsupported incompat flags")
	}
	if !strings.Contains(errs[0].Error(), "incompat") {
		t.Errorf("unexpected error: %v", errs[0])
	}
}

func TestDecode_SignedFrame(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	data[2] = IncompatFlagSigned

	// Re-compute checksum with the signed flag set
	body := data[:len(data)-ChecksumSize]
	extra, _ := MessageCRCExtra(MsgIDLEDStripConfig)
	crc := accumulateCRCByte(CalculateCRC(body[1:]), extra)
	signed := append([]byte{}, body...)
	signed = append(signed, byte(crc&0xFF), byte(crc>>8))
	signed = append(signed, make([]byte, SignatureSize)...)

	decoded := decodeAll(t, signed)
	if !decoded.IsSigned() {
		t.Error("decoded frame should report signed")
	}
	if decoded.Checksum() != crc {
		t.Errorf("checksum = 0x%04X, want 0x%04X", decoded.Checksum(), crc)
	}
}

func TestDecoder_GetRawBytes(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	decoder := NewDecoder()
	for _, b := range data[:5] {
		if _, err := decoder.DecodeByte(b); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !bytes.Equal(decoder.GetRawBytes(), data[:5]) {
		t.Errorf("raw bytes = %X, want %X", decoder.GetRawBytes(), data[:5])
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name    string
		msg     *LEDStripConfig
		anomaly AnomalyType
		valid   bool
	}{
		{
			name:  "valid indexed",
			msg:   testLEDFrame().Message.(*LEDStripConfig),
			valid: true,
		},
		{
			name:  "valid follow",
			msg:   &LEDStripConfig{FillMode: FillModeFollowFlightMode, LEDCount: LEDStripMaxColors},
			valid: true,
		},
		{
			name:    "zero count",
			msg:     &LEDStripConfig{FillMode: FillModeIndex},
			anomaly: AnomalyInvalidCount,
		},
		{
			name:    "count above eight",
			msg:     &LEDStripConfig{FillMode: FillModeIndex, LEDCount: 9},
			anomaly: AnomalyInvalidCount,
		},
		{
			name:    "padding not zero",
			msg:     &LEDStripConfig{LEDCount: 1, Colors: [LEDStripMaxColors]uint32{1, 0, 5}},
			anomaly: AnomalyNonZeroPadding,
		},
		{
			name:    "index overflow",
			msg:     &LEDStripConfig{LEDIndex: 252, LEDCount: 8},
			anomaly: AnomalyIndexOverflow,
		},
		{
			name:    "follow with colors",
			msg:     &LEDStripConfig{FillMode: FillModeFollowFlightMode, LEDCount: 8, Colors: [LEDStripMaxColors]uint32{1}},
			anomaly: AnomalyFollowModeShape,
		},
		{
			name:    "unknown fill mode",
			msg:     &LEDStripConfig{FillMode: 7, LEDCount: 1},
			anomaly: AnomalyInvalidFillMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(NewFrame(Address{}, tt.msg))
			if tt.valid {
				if len(errs) != 0 {
					t.Errorf("expected no anomalies, got %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatal("expected an anomaly")
			}
			if errs[0].Type != tt.anomaly {
				t.Errorf("anomaly = %d, want %d (%s)", errs[0].Type, tt.anomaly, errs[0].Error())
			}
		})
	}
}

func TestValidateFrame_IgnoresHeartbeat(t *testing.T) {
	if errs := ValidateFrame(NewFrame(Address{}, &Heartbeat{})); len(errs) != 0 {
		t.Errorf("heartbeat should not produce anomalies, got %v", errs)
	}
}

// ============================================================
// Formatter and Statistics Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	out := FormatFrame(testLEDFrame())
	for _, want := range []string{"LED_STRIP_CONFIG", "Strip: 2", "Mode: INDEX", "Index: 16", "FF0000 00FF00 0000FF"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted frame missing %q:\n%s", want, out)
		}
	}
}

func TestFormatMessageName(t *testing.T) {
	if got := FormatMessageName(MsgIDHeartbeat); got != "HEARTBEAT" {
		t.Errorf("got %q", got)
	}
	if got := FormatMessageName(424242); got != "UNKNOWN" {
		t.Errorf("got %q", got)
	}
}

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(testLEDFrame(), nil, nil)
	s.Update(NewFrame(Address{}, &Heartbeat{}), nil, nil)
	s.Update(nil, ErrChecksum, nil)
	s.Update(nil, ErrUnknownMessage, nil)
	s.Update(nil, errors.New("unsupported incompat flags: 0x02"), nil)
	s.Update(NewFrame(Address{}, &LEDStripConfig{}), nil, []ValidationError{{Type: AnomalyInvalidCount}})

	if s.TotalFrames != 6 {
		t.Errorf("TotalFrames = %d, want 6", s.TotalFrames)
	}
	if s.ValidFrames != 2 {
		t.Errorf("ValidFrames = %d, want 2", s.ValidFrames)
	}
	if s.CRCErrors != 1 || s.UnknownMessages != 1 || s.DecodeErrors != 1 || s.Anomalies != 1 {
		t.Errorf("error counters = %d/%d/%d/%d", s.CRCErrors, s.UnknownMessages, s.DecodeErrors, s.Anomalies)
	}
	if s.LEDFrames != 2 || s.Heartbeats != 1 {
		t.Errorf("LEDFrames = %d, Heartbeats = %d", s.LEDFrames, s.Heartbeats)
	}
	if !strings.Contains(s.String(), "Total Frames:") {
		t.Error("String() missing summary")
	}

	s.Reset()
	if s.TotalFrames != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestDecoder_LastFrameBytes(t *testing.T) {
	data := MustEncodeFrame(testLEDFrame())
	decoder := NewDecoder()
	frames, errs := decoder.Decode(append([]byte{0x01, 0x02}, data...))
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("frames=%d errs=%v", len(frames), errs)
	}
	if !bytes.Equal(decoder.LastFrameBytes(), data) {
		t.Errorf("last frame bytes = %X, want %X", decoder.LastFrameBytes(), data)
	}
}

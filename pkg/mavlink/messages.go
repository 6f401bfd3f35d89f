// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"fmt"
)

// Message is a MAVLink message payload
type Message interface {
	// MessageID returns the 24-bit message id
	MessageID() uint32
	// Marshal returns the full, untruncated payload
	Marshal() []byte
	// Unmarshal decodes a payload that has already been zero-extended
	// to the message's full size
	Unmarshal(payload []byte) error
}

// messageDef holds what the codec needs to know about a message id
type messageDef struct {
	name     string
	size     int
	crcExtra uint8
	newMsg   func() Message
}

var heartbeatFields = []Field{
	{Type: "uint32_t", Name: "custom_mode"},
	{Type: "uint8_t", Name: "type"},
	{Type: "uint8_t", Name: "autopilot"},
	{Type: "uint8_t", Name: "base_mode"},
	{Type: "uint8_t", Name: "system_status"},
	{Type: "uint8_t", Name: "mavlink_version"},
}

var ledStripConfigFields = []Field{
	{Type: "uint32_t", Name: "colors", ArrayLen: LEDStripMaxColors},
	{Type: "uint8_t", Name: "target_system"},
	{Type: "uint8_t", Name: "target_component"},
	{Type: "uint8_t", Name: "fill_mode"},
	{Type: "uint8_t", Name: "led_index"},
	{Type: "uint8_t", Name: "led_count"},
	{Type: "uint8_t", Name: "strip_id"},
}

var messageDefs = map[uint32]messageDef{
	MsgIDHeartbeat: {
		name:     "HEARTBEAT",
		size:     heartbeatSize,
		crcExtra: CRCExtra("HEARTBEAT", heartbeatFields),
		newMsg:   func() Message { return &Heartbeat{} },
	},
	MsgIDLEDStripConfig: {
		name:     "LED_STRIP_CONFIG",
		size:     ledStripConfigSize,
		crcExtra: CRCExtra("LED_STRIP_CONFIG", ledStripConfigFields),
		newMsg:   func() Message { return &LEDStripConfig{} },
	},
}

func lookupMessage(id uint32) (messageDef, bool) {
	def, ok := messageDefs[id]
	return def, ok
}

// MessageCRCExtra returns the CRC_EXTRA byte for a known message id
func MessageCRCExtra(id uint32) (uint8, bool) {
	def, ok := messageDefs[id]
	return def.crcExtra, ok
}

const heartbeatSize = 9

// Heartbeat is the HEARTBEAT message (id 0)
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

// MessageID implements Message
func (h *Heartbeat) MessageID() uint32 {
	return MsgIDHeartbeat
}

// Marshal implements Message
func (h *Heartbeat) Marshal() []byte {
	buf := make([]byte, heartbeatSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.CustomMode)
	buf[4] = h.Type
	buf[5] = h.Autopilot
	buf[6] = h.BaseMode
	buf[7] = h.SystemStatus
	buf[8] = h.MavlinkVersion
	return buf
}

// Unmarshal implements Message
func (h *Heartbeat) Unmarshal(payload []byte) error {
	if len(payload) < heartbeatSize {
		return fmt.Errorf("HEARTBEAT payload too short: %d bytes (want %d)", len(payload), heartbeatSize)
	}
	h.CustomMode = binary.LittleEndian.Uint32(payload[0:4])
	h.Type = payload[4]
	h.Autopilot = payload[5]
	h.BaseMode = payload[6]
	h.SystemStatus = payload[7]
	h.MavlinkVersion = payload[8]
	return nil
}

// IsAutopilot reports whether the heartbeat was sent by a flight controller
func (h *Heartbeat) IsAutopilot() bool {
	return h.Autopilot != AutopilotInvalid && h.Type != TypeGCS
}

const ledStripConfigSize = LEDStripMaxColors*4 + 6

// LEDStripConfig is the LED_STRIP_CONFIG message: up to eight colors for
// one strip, starting at LEDIndex.
type LEDStripConfig struct {
	Colors          [LEDStripMaxColors]uint32
	TargetSystem    uint8
	TargetComponent uint8
	FillMode        FillMode
	LEDIndex        uint8
	LEDCount        uint8
	StripID         uint8
}

// MessageID implements Message
func (m *LEDStripConfig) MessageID() uint32 {
	return MsgIDLEDStripConfig
}

// Marshal implements Message
func (m *LEDStripConfig) Marshal() []byte {
	buf := make([]byte, ledStripConfigSize)
	for i, c := range m.Colors {
		binary.LittleEndian.PutUint32(buf[i*4:], c)
	}
	o := LEDStripMaxColors * 4
	buf[o] = m.TargetSystem
	buf[o+1] = m.TargetComponent
	buf[o+2] = uint8(m.FillMode)
	buf[o+3] = m.LEDIndex
	buf[o+4] = m.LEDCount
	buf[o+5] = m.StripID
	return buf
}

// Unmarshal implements Message
func (m *LEDStripConfig) Unmarshal(payload []byte) error {
	if len(payload) < ledStripConfigSize {
		return fmt.Errorf("LED_STRIP_CONFIG payload too short: %d bytes (want %d)", len(payload), ledStripConfigSize)
	}
	for i := range m.Colors {
		m.Colors[i] = binary.LittleEndian.Uint32(payload[i*4:])
	}
	o := LEDStripMaxColors * 4
	m.TargetSystem = payload[o]
	m.TargetComponent = payload[o+1]
	m.FillMode = FillMode(payload[o+2])
	m.LEDIndex = payload[o+3]
	m.LEDCount = payload[o+4]
	m.StripID = payload[o+5]
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mavlink provides the subset of the MAVLink v2 wire protocol used to
// drive an addressable LED rig over a vehicle command link.
//
// It covers frame encoding/decoding, X.25 checksums with per-message
// CRC_EXTRA seeds, the HEARTBEAT and LED_STRIP_CONFIG payloads, payload
// validation and human-readable formatting.
package mavlink

// Protocol framing
const (
	StartByte     = 0xFD
	HeaderSize    = 10 // start byte + 9 header bytes
	ChecksumSize  = 2
	SignatureSize = 13
)

// Frame size limits
const (
	MaxPayloadSize = 255
	MaxFrameSize   = HeaderSize + MaxPayloadSize + ChecksumSize + SignatureSize
)

// Incompatibility flags
const (
	IncompatFlagSigned = 0x01
)

// X.25 (CRC-16/MCRF4XX) configuration
const (
	crcInitial = 0xFFFF
)

// Message IDs
const (
	MsgIDHeartbeat      uint32 = 0
	MsgIDLEDStripConfig uint32 = 52100
)

// LEDStripMaxColors is the number of color slots carried by one
// LED_STRIP_CONFIG message.
const LEDStripMaxColors = 8

// FillMode is the LED_STRIP_CONFIG fill_mode field
type FillMode uint8

// Fill mode values
const (
	FillModeIndex            FillMode = 0
	FillModeFollowFlightMode FillMode = 1
)

// Component IDs
const (
	ComponentIDAll            = 0
	ComponentIDAutopilot      = 1
	ComponentIDLights         = 135
	ComponentIDMissionPlanner = 190
)

// MAV_TYPE values
const (
	TypeGeneric   = 0
	TypeQuadrotor = 2
	TypeGCS       = 6
)

// MAV_AUTOPILOT values
const (
	AutopilotGeneric = 0
	AutopilotInvalid = 8
	AutopilotPX4     = 12
)

// MAV_STATE values
const (
	StateUninit      = 0
	StateBoot        = 1
	StateCalibrating = 2
	StateStandby     = 3
	StateActive      = 4
	StateCritical    = 5
	StateEmergency   = 6
)

// MAV_MODE_FLAG values used by lumen
const (
	ModeFlagSafetyArmed = 0x80
)

// Version is the MAVLink protocol version carried in HEARTBEAT.
const Version = 3

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateIncompat
	stateCompat
	stateSequence
	stateSystemID
	stateComponentID
	stateMsgID
	statePayload
	stateCRC1
	stateCRC2
	stateSignature
)

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

// CalculateCRC computes the X.25 (CRC-16/MCRF4XX) checksum for the given data
func CalculateCRC(data []byte) uint16 {
	return accumulateCRC(crcInitial, data)
}

func accumulateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = accumulateCRCByte(crc, b)
	}
	return crc
}

func accumulateCRCByte(crc uint16, b byte) uint16 {
	tmp := b ^ byte(crc&0xFF)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

// Field describes one field of a message definition, in wire order.
// ArrayLen is zero for scalar fields.
type Field struct {
	Type     string
	Name     string
	ArrayLen uint8
}

// CRCExtra derives the CRC_EXTRA seed byte of a message from its
// definition, the same way the MAVLink generator does.
func CRCExtra(name string, fields []Field) uint8 {
	crc := accumulateCRC(crcInitial, []byte(name+" "))
	for _, f := range fields {
		crc = accumulateCRC(crc, []byte(f.Type+" "))
		crc = accumulateCRC(crc, []byte(f.Name+" "))
		if f.ArrayLen > 0 {
			crc = accumulateCRCByte(crc, f.ArrayLen)
		}
	}
	return uint8(crc&0xFF) ^ uint8(crc>>8)
}

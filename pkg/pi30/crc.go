// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

// CalculateCRC computes the raw 16-bit checksum of data, before escaping.
func CalculateCRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		da := uint8(crc>>12) & 0x0F
		crc <<= 4
		crc ^= crcTable[da^(b>>4)]

		da = uint8(crc>>12) & 0x0F
		crc <<= 4
		crc ^= crcTable[da^(b&0x0F)]
	}
	return crc
}

// Checksum returns the escaped checksum bytes for cmd, high byte first.
// Neither returned byte is ever '(', CR or LF.
func Checksum(cmd []byte) (hi, lo byte) {
	crc := CalculateCRC(cmd)
	return escape(byte(crc >> 8)), escape(byte(crc))
}

// IsReserved reports whether b is one of the bytes a checksum may not carry.
func IsReserved(b byte) bool {
	return b == StartByte || b == Terminator || b == LineFeedByte
}

func escape(b byte) byte {
	if IsReserved(b) {
		return b + 1
	}
	return b
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pi30 implements the PI30 command/response protocol spoken by
// Voltronic-style solar inverters over their USB HID (or RS-232) port.
//
// A command is ASCII text followed by a two byte checksum and a carriage
// return. Responses start with '(' and end the same way. This package
// provides checksum calculation, transport framing, response reading and
// response decoding, plus the field layouts used to derive power values
// from QPGS responses.
package pi30

import "time"

// Protocol framing bytes
const (
	StartByte    = 0x28 // '('
	Terminator   = 0x0D // carriage return
	LineFeedByte = 0x0A
	ReportID     = 0x00
)

// Transport block sizes
const (
	BlockSize       = 8
	ReportBlockSize = BlockSize + 1
)

// Response reader defaults
const (
	DefaultResponseTimeout = 1500 * time.Millisecond
	DefaultReadTimeout     = 20 * time.Millisecond
	DefaultDrainTimeout    = 1 * time.Millisecond

	// maxDrainReads bounds the stale-input drain so a chatty device can
	// never stall the caller.
	maxDrainReads = 16

	// maxResponseSize caps the accumulated response buffer.
	maxResponseSize = 512
)

// Checksum table: CRC-16/XMODEM (poly 0x1021, init 0) processed a nibble at a time.
var crcTable = [16]uint16{
	0x0000, 0x1021, 0x2042, 0x3063, 0x4084, 0x50a5, 0x60c6, 0x70e7,
	0x8108, 0x9129, 0xa14a, 0xb16b, 0xc18c, 0xd1ad, 0xe1ce, 0xf1ef,
}

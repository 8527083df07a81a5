// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"fmt"
	"strings"
)

// FormatHex formats bytes as space separated upper case hex pairs.
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// FormatPrintable renders a frame with printable ASCII kept as is and
// everything else shown as <XX>.
func FormatPrintable(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		switch {
		case c == Terminator:
			b.WriteString("<CR>")
		case c >= 0x20 && c < 0x7F:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "<%02X>", c)
		}
	}
	return b.String()
}

// FormatFrame describes the frame and transport blocks for cmd.
func FormatFrame(cmd string, reportID bool) string {
	hi, lo := Checksum([]byte(cmd))
	crc := CalculateCRC([]byte(cmd))
	frame := EncodeFrame(cmd)

	result := fmt.Sprintf("%s (%s)\n", cmd, DescribeCommand(cmd))
	result += fmt.Sprintf("  CRC:    0x%04X -> %02X %02X", crc, hi, lo)
	if hi != byte(crc>>8) || lo != byte(crc) {
		result += " (escaped)"
	}
	result += "\n"
	result += fmt.Sprintf("  Frame:  %s\n", FormatHex(frame))
	for i, block := range SplitBlocks(frame, reportID) {
		result += fmt.Sprintf("  Block %d: %s\n", i, FormatHex(block))
	}
	return result
}

// FormatFields formats decoded fields with their index and, when the
// layout knows it, the quantity they carry.
func FormatFields(fields []string, names map[int]string) string {
	result := ""
	for i, f := range fields {
		if name, ok := names[i]; ok {
			result += fmt.Sprintf("  [%2d] %-28s %s\n", i, name, f)
		} else {
			result += fmt.Sprintf("  [%2d] %-28s %s\n", i, "", f)
		}
	}
	return result
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import "io"

// EncodeFrame builds the wire frame for cmd: command bytes, checksum high,
// checksum low, terminator.
func EncodeFrame(cmd string) []byte {
	hi, lo := Checksum([]byte(cmd))

	frame := make([]byte, 0, len(cmd)+3)
	frame = append(frame, cmd...)
	frame = append(frame, hi, lo, Terminator)
	return frame
}

// SplitBlocks splits a frame into fixed-width transport blocks. The final
// block is zero padded. With reportID set every block is prefixed with a
// zero report id, giving ReportBlockSize bytes per block.
func SplitBlocks(frame []byte, reportID bool) [][]byte {
	offset := 0
	size := BlockSize
	if reportID {
		offset = 1
		size = ReportBlockSize
	}

	blocks := make([][]byte, 0, (len(frame)+BlockSize-1)/BlockSize)
	for start := 0; start < len(frame); start += BlockSize {
		end := start + BlockSize
		if end > len(frame) {
			end = len(frame)
		}
		block := make([]byte, size)
		if reportID {
			block[0] = ReportID
		}
		copy(block[offset:], frame[start:end])
		blocks = append(blocks, block)
	}
	return blocks
}

// WriteCommand frames cmd and writes it block by block.
// Write failures are not reported; a failed write shows up as a missing
// response and the caller repeats the exchange later.
func WriteCommand(w io.Writer, cmd string, reportID bool) int {
	written := 0
	for _, block := range SplitBlocks(EncodeFrame(cmd), reportID) {
		n, _ := w.Write(block)
		written += n
	}
	return written
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"bytes"
	"errors"
	"testing"
)

// recordingWriter captures every block written to it
type recordingWriter struct {
	blocks [][]byte
	err    error
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.blocks = append(w.blocks, append([]byte(nil), p...))
	if w.err != nil {
		return 0, w.err
	}
	return len(p), nil
}

func TestEncodeFrame_QPGS1(t *testing.T) {
	frame := EncodeFrame("QPGS1")
	expected := []byte{0x51, 0x50, 0x47, 0x53, 0x31, 0x2F, 0xFB, 0x0D}
	if !bytes.Equal(frame, expected) {
		t.Errorf("frame = % X, want % X", frame, expected)
	}
}

func TestEncodeFrame_TerminatorLast(t *testing.T) {
	for _, cmd := range []string{"QAO", "QHS", "QED20240101", "QPIGS"} {
		frame := EncodeFrame(cmd)
		if len(frame) != len(cmd)+3 {
			t.Errorf("%s: frame length %d, want %d", cmd, len(frame), len(cmd)+3)
		}
		if frame[len(frame)-1] != Terminator {
			t.Errorf("%s: last byte 0x%02X, want terminator", cmd, frame[len(frame)-1])
		}
		if bytes.IndexByte(frame, Terminator) != len(frame)-1 {
			t.Errorf("%s: terminator appears before end of frame: % X", cmd, frame)
		}
	}
}

func TestSplitBlocks_NoReportID(t *testing.T) {
	frame := EncodeFrame("QED20240101") // 14 bytes
	blocks := SplitBlocks(frame, false)

	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	for i, b := range blocks {
		if len(b) != BlockSize {
			t.Errorf("block %d has %d bytes, want %d", i, len(b), BlockSize)
		}
	}
	if !bytes.Equal(blocks[0], frame[:8]) {
		t.Errorf("block 0 = % X, want % X", blocks[0], frame[:8])
	}
	want := append(append([]byte(nil), frame[8:]...), 0x00, 0x00)
	if !bytes.Equal(blocks[1], want) {
		t.Errorf("block 1 = % X, want % X", blocks[1], want)
	}
}

func TestSplitBlocks_ReportID(t *testing.T) {
	frame := EncodeFrame("QPIGS") // 8 bytes
	blocks := SplitBlocks(frame, true)

	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	want := append([]byte{ReportID}, frame...)
	if !bytes.Equal(blocks[0], want) {
		t.Errorf("block = % X, want % X", blocks[0], want)
	}
}

func TestSplitBlocks_PreservesOrder(t *testing.T) {
	frame := EncodeFrame("QPGS1QPGS2QPGS3")
	var joined []byte
	for _, b := range SplitBlocks(frame, true) {
		joined = append(joined, b[1:]...)
	}
	if !bytes.Equal(joined[:len(frame)], frame) {
		t.Errorf("reassembled blocks differ from frame")
	}
	for _, b := range joined[len(frame):] {
		if b != 0 {
			t.Errorf("padding byte 0x%02X, want 0x00", b)
		}
	}
}

func TestWriteCommand_IgnoresWriteErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broken pipe")}
	written := WriteCommand(w, "QED20240101", true)

	if written != 0 {
		t.Errorf("expected 0 bytes reported, got %d", written)
	}
	if len(w.blocks) != 2 {
		t.Errorf("expected every block to be attempted, got %d writes", len(w.blocks))
	}
}

func TestWriteCommand_BlockWidth(t *testing.T) {
	w := &recordingWriter{}
	written := WriteCommand(w, "QPGS1", true)

	if written != ReportBlockSize {
		t.Errorf("expected %d bytes written, got %d", ReportBlockSize, written)
	}
	if len(w.blocks) != 1 || len(w.blocks[0]) != ReportBlockSize {
		t.Errorf("unexpected blocks: %v", w.blocks)
	}
}

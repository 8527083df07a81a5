// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"strings"
	"testing"
	"time"
)

func TestParallelStatusCommand(t *testing.T) {
	for id, want := range map[uint8]string{0: "QPGS0", 1: "QPGS1", 2: "QPGS2", 9: "QPGS9"} {
		if got := ParallelStatusCommand(id); got != want {
			t.Errorf("ParallelStatusCommand(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestEnergyDayCommand(t *testing.T) {
	day := time.Date(2024, time.January, 1, 23, 59, 0, 0, time.Local)
	if got := EnergyDayCommand(day); got != "QED20240101" {
		t.Errorf("EnergyDayCommand = %q, want QED20240101", got)
	}
	if got := DateStamp(day); got != "20240101" {
		t.Errorf("DateStamp = %q, want 20240101", got)
	}
}

func TestIsQuery(t *testing.T) {
	tests := map[string]bool{
		"QPGS1":       true,
		"QPIGS":       true,
		"QED20240101": true,
		"Q":           false,
		"":            false,
		"POP02":       false,
		"PBCV44.0":    false,
		"MUCHGC030":   false,
		"QPI\rPOP00":  false,
	}
	for cmd, want := range tests {
		if got := IsQuery(cmd); got != want {
			t.Errorf("IsQuery(%q) = %v, want %v", cmd, got, want)
		}
	}
}

func TestModeFor(t *testing.T) {
	if ModeFor("QED20240101") != ModeEnergy {
		t.Error("QED should decode in energy mode")
	}
	if ModeFor("QEY2024") != ModeEnergy {
		t.Error("QEY should decode in energy mode")
	}
	for _, cmd := range []string{"QPGS1", "QPIGS", "QMOD", "QPIRI"} {
		if ModeFor(cmd) != ModeTelemetry {
			t.Errorf("%s should decode in telemetry mode", cmd)
		}
	}
}

func TestDescribeCommand(t *testing.T) {
	if got := DescribeCommand("QPGS2"); got != "PARALLEL_STATUS" {
		t.Errorf("DescribeCommand(QPGS2) = %q", got)
	}
	if got := DescribeCommand("QED20240101"); got != "ENERGY_DAY" {
		t.Errorf("DescribeCommand(QED...) = %q", got)
	}
	if got := DescribeCommand("QXYZ"); got != "UNKNOWN" {
		t.Errorf("DescribeCommand(QXYZ) = %q", got)
	}
}

func TestFormatFrame(t *testing.T) {
	out := FormatFrame("QPGS1", true)
	for _, want := range []string{
		"QPGS1 (PARALLEL_STATUS)",
		"CRC:    0x2FFB -> 2F FB",
		"Frame:  51 50 47 53 31 2F FB 0D",
		"Block 0: 00 51 50 47 53 31 2F FB 0D",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame output missing %q:\n%s", want, out)
		}
	}

	if out := FormatFrame("QAO", false); !strings.Contains(out, "(escaped)") {
		t.Errorf("escaped checksum not flagged:\n%s", out)
	}
}

func TestFormatPrintable(t *testing.T) {
	got := FormatPrintable([]byte{'(', 'A', ' ', 0x2F, 0xFB, 0x0D})
	if got != "(A /<FB><CR>" {
		t.Errorf("FormatPrintable = %q", got)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	s.Update([]byte("(1 2xx\r"), nil, nil, 100*time.Millisecond)
	s.Update([]byte("(1 2xx\r"), nil, nil, 300*time.Millisecond)
	s.Update(nil, ErrNoResponse, nil, 0)
	s.Update(nil, fmt.Errorf("read: %w", errors.New("device removed")), nil, 0)
	s.Update([]byte("(1 2"), nil, ErrNoTerminator, 0)
	s.Update([]byte("(NAKxx\r"), nil, ErrNAK, 0)
	s.Update([]byte("(1 2xx\r"), nil, ErrChecksumMismatch, 0)
	s.Update([]byte("junk"), nil, ErrNoStartMarker, 0)

	if s.TotalExchanges != 8 {
		t.Errorf("TotalExchanges = %d, want 8", s.TotalExchanges)
	}
	if s.ValidResponses != 2 {
		t.Errorf("ValidResponses = %d, want 2", s.ValidResponses)
	}
	if s.NoResponse != 1 || s.ReadErrors != 1 {
		t.Errorf("NoResponse = %d, ReadErrors = %d, want 1 and 1", s.NoResponse, s.ReadErrors)
	}
	if s.PartialResponses != 1 || s.NAKs != 1 || s.ChecksumErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("unexpected decode counters: %+v", s)
	}
	if s.Failures() != 6 {
		t.Errorf("Failures = %d, want 6", s.Failures())
	}
	if s.MinLatency != 100*time.Millisecond || s.MaxLatency != 300*time.Millisecond {
		t.Errorf("latency range = %v..%v", s.MinLatency, s.MaxLatency)
	}
	if s.AverageLatency() != 200*time.Millisecond {
		t.Errorf("AverageLatency = %v, want 200ms", s.AverageLatency())
	}
	if s.BytesReceived != 7+7+4+7+7+4 {
		t.Errorf("BytesReceived = %d", s.BytesReceived)
	}
}

func TestStatistics_StringAndReset(t *testing.T) {
	s := NewStatistics()
	s.Update(nil, ErrNoResponse, nil, 0)

	out := s.String()
	if !strings.Contains(out, "Total Exchanges:        1") || !strings.Contains(out, "No Response:") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	s.Reset()
	if s.TotalExchanges != 0 || s.NoResponse != 0 {
		t.Errorf("Reset left counters: %+v", s)
	}
}

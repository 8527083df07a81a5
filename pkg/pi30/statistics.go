// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks exchange outcomes and latency
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalExchanges   uint64
	ValidResponses   uint64
	NoResponse       uint64
	ReadErrors       uint64
	DecodeErrors     uint64
	ChecksumErrors   uint64
	NAKs             uint64
	PartialResponses uint64
	BytesReceived    uint64

	// Latency of successful exchanges
	MinLatency   time.Duration
	MaxLatency   time.Duration
	TotalLatency time.Duration

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one exchange: the raw response, the error from reading
// it, the error from decoding it, and how long it took.
func (s *Statistics) Update(raw []byte, readErr, decodeErr error, latency time.Duration) {
	s.TotalExchanges++
	s.BytesReceived += uint64(len(raw))
	s.LastUpdateTime = time.Now()

	if readErr != nil {
		if errors.Is(readErr, ErrNoResponse) {
			s.NoResponse++
		} else {
			s.ReadErrors++
		}
		return
	}

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksumMismatch):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrNAK):
			s.NAKs++
		case errors.Is(decodeErr, ErrNoTerminator):
			s.PartialResponses++
		default:
			s.DecodeErrors++
		}
		return
	}

	s.ValidResponses++
	s.TotalLatency += latency
	if s.MinLatency == 0 || latency < s.MinLatency {
		s.MinLatency = latency
	}
	if latency > s.MaxLatency {
		s.MaxLatency = latency
	}
}

// Failures returns the number of exchanges that did not yield a valid response.
func (s *Statistics) Failures() uint64 {
	return s.TotalExchanges - s.ValidResponses
}

// AverageLatency returns the mean latency of successful exchanges.
func (s *Statistics) AverageLatency() time.Duration {
	if s.ValidResponses == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.ValidResponses)
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.TotalExchanges) / elapsed
		s.ErrorRate = float64(s.Failures()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalExchanges == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalExchanges)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Exchanges: %8d\n", s.TotalExchanges)
	result += fmt.Sprintf("Valid Responses: %8d (%.1f%%)\n", s.ValidResponses, percent(s.ValidResponses))

	if s.NoResponse > 0 {
		result += fmt.Sprintf("No Response:     %8d (%.1f%%)\n", s.NoResponse, percent(s.NoResponse))
	}
	if s.ReadErrors > 0 {
		result += fmt.Sprintf("Read Errors:     %8d (%.1f%%)\n", s.ReadErrors, percent(s.ReadErrors))
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.PartialResponses > 0 {
		result += fmt.Sprintf("Partial:         %8d (%.1f%%)\n", s.PartialResponses, percent(s.PartialResponses))
	}
	if s.NAKs > 0 {
		result += fmt.Sprintf("NAK:             %8d (%.1f%%)\n", s.NAKs, percent(s.NAKs))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}

	if s.ValidResponses > 0 {
		result += fmt.Sprintf("Latency:         min %v / avg %v / max %v\n",
			s.MinLatency.Round(time.Millisecond), s.AverageLatency().Round(time.Millisecond), s.MaxLatency.Round(time.Millisecond))
	}
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	result += fmt.Sprintf("Exchange Rate:   %8.1f exch/sec\n", s.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}

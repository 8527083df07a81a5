// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Decode errors
var (
	ErrNoStartMarker    = errors.New("no start marker")
	ErrNoTerminator     = errors.New("no terminator after start marker")
	ErrEmptyPayload     = errors.New("empty payload")
	ErrNAK              = errors.New("command not acknowledged")
	ErrNoDigits         = errors.New("no leading digits in energy payload")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Mode selects how a response payload is sanitized.
type Mode int

const (
	// ModeTelemetry strips the trailing checksum and keeps only ASCII
	// letters, digits and '.' in each token.
	ModeTelemetry Mode = iota
	// ModeEnergy reads the leading digit run as watt-hours and formats it
	// as kilowatt-hours with two fraction digits.
	ModeEnergy
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeTelemetry:
		return "telemetry"
	case ModeEnergy:
		return "energy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ExtractFrame returns the bytes between the first start marker
// (exclusive) and the first terminator after it (exclusive). The trailing
// checksum bytes, if any, are still part of the result.
func ExtractFrame(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, StartByte)
	if start < 0 {
		return nil, ErrNoStartMarker
	}
	end := bytes.IndexByte(raw[start+1:], Terminator)
	if end < 0 {
		return nil, ErrNoTerminator
	}
	return raw[start+1 : start+1+end], nil
}

// VerifyResponse checks the two bytes before the terminator against the
// checksum of the start marker plus payload. It returns the payload with
// the checksum removed.
func VerifyResponse(raw []byte) ([]byte, error) {
	frame, err := ExtractFrame(raw)
	if err != nil {
		return nil, err
	}
	if len(frame) < 2 {
		return nil, ErrEmptyPayload
	}
	payload := frame[:len(frame)-2]
	if !checksumMatches(payload, frame[len(frame)-2], frame[len(frame)-1]) {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

func checksumMatches(payload []byte, hi, lo byte) bool {
	covered := make([]byte, 0, len(payload)+1)
	covered = append(covered, StartByte)
	covered = append(covered, payload...)
	wantHi, wantLo := Checksum(covered)
	return wantHi == hi && wantLo == lo
}

// Decode interprets a raw response in the given mode. In ModeEnergy the
// result holds exactly one token and date is the day the query asked for,
// so an echoed date is not read as part of the total.
func Decode(raw []byte, mode Mode, date string) ([]string, error) {
	switch mode {
	case ModeTelemetry:
		return DecodeTelemetry(raw)
	case ModeEnergy:
		total, err := DecodeEnergy(raw, date)
		if err != nil {
			return nil, err
		}
		return []string{total}, nil
	default:
		return nil, fmt.Errorf("unknown decode mode %d", int(mode))
	}
}

// DecodeFor decodes the response to cmd, picking the mode and the
// expected date echo from the command itself.
func DecodeFor(cmd string, raw []byte) ([]string, error) {
	return Decode(raw, ModeFor(cmd), QueryDate(cmd))
}

// DecodeTelemetry decodes a whitespace separated response such as QPGS.
// The two bytes before the terminator are always treated as checksum.
// Tokens keep their position even when sanitizing empties them.
func DecodeTelemetry(raw []byte) ([]string, error) {
	frame, err := ExtractFrame(raw)
	if err != nil {
		return nil, err
	}
	if len(frame) <= 2 {
		return nil, ErrEmptyPayload
	}
	payload := frame[:len(frame)-2]

	words := strings.Fields(string(payload))
	if len(words) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(words) == 1 && words[0] == "NAK" {
		return nil, ErrNAK
	}

	fields := make([]string, len(words))
	for i, w := range words {
		fields[i] = sanitizeToken(w)
	}
	return fields, nil
}

// DecodeEnergy decodes a daily energy response and returns the total in
// kWh formatted with two fraction digits. A frame whose trailing checksum
// does not verify is rejected, unless it is a bare total of at most
// maxBareDigits digits sent without any checksum. If date is set and the
// payload echoes it, the echo is skipped.
func DecodeEnergy(raw []byte, date string) (string, error) {
	frame, err := ExtractFrame(raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(frame)) == "NAK" {
		return "", ErrNAK
	}
	payload := frame
	if len(frame) > 2 {
		switch {
		case checksumMatches(frame[:len(frame)-2], frame[len(frame)-2], frame[len(frame)-1]):
			payload = frame[:len(frame)-2]
		case isBareTotal(frame, date):
		default:
			return "", ErrChecksumMismatch
		}
	}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", ErrEmptyPayload
	}
	if text == "NAK" {
		return "", ErrNAK
	}
	text = stripDate(text, date)

	digits := leadingDigits(text)
	if digits == "" {
		return "", ErrNoDigits
	}
	wh, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return "", fmt.Errorf("energy total %q: %w", digits, err)
	}
	return FormatKWh(wh), nil
}

// maxBareDigits is the longest total accepted from a frame without a checksum.
const maxBareDigits = 8

func isBareTotal(frame []byte, date string) bool {
	s := stripDate(string(frame), date)
	return len(s) <= maxBareDigits && leadingDigits(s) == s
}

func stripDate(text, date string) string {
	if date != "" && len(text) > len(date) && strings.HasPrefix(text, date) {
		return text[len(date):]
	}
	return text
}

// FormatKWh formats a watt-hour count as kWh with two fraction digits.
func FormatKWh(wh uint64) string {
	return fmt.Sprintf("%.2f", float64(wh)/1000.0)
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func sanitizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '.' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

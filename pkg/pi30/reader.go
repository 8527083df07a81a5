// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// ErrNoResponse is returned when the response deadline passes with nothing read.
var ErrNoResponse = errors.New("no response before deadline")

// Port is a block-oriented device handle. *hid.Device from
// github.com/sstallion/go-hid satisfies it directly.
type Port interface {
	Write(p []byte) (int, error)
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
}

// Options configures a request/response exchange.
type Options struct {
	ReportID        bool          // prefix each written block with a zero report id
	ResponseTimeout time.Duration // overall deadline for one response
	ReadTimeout     time.Duration // timeout of a single read call
	DrainTimeout    time.Duration // timeout of a single read while draining stale input
}

// DefaultOptions returns the options used by USB HID inverters.
func DefaultOptions() Options {
	return Options{
		ReportID:        true,
		ResponseTimeout: DefaultResponseTimeout,
		ReadTimeout:     DefaultReadTimeout,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = DefaultResponseTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	return o
}

// Drain discards whatever is waiting on the port. It is best effort and
// bounded: read errors end the drain silently. Returns the number of
// bytes discarded.
func Drain(port Port, timeout time.Duration) int {
	buf := make([]byte, 64)
	discarded := 0
	for i := 0; i < maxDrainReads; i++ {
		n, err := port.ReadWithTimeout(buf, timeout)
		if err != nil || n <= 0 {
			break
		}
		discarded += n
	}
	return discarded
}

// ReadResponse accumulates bytes from port until a terminator has been
// seen or the response timeout passes. A partial buffer is returned as
// is when the deadline passes after some bytes arrived. ErrNoResponse is
// returned when nothing arrived at all.
func ReadResponse(port Port, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.ResponseTimeout)

	var resp []byte
	buf := make([]byte, 64)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		timeout := opts.ReadTimeout
		if remaining < timeout {
			timeout = remaining
		}

		n, err := port.ReadWithTimeout(buf, timeout)
		if err != nil {
			if len(resp) == 0 {
				return nil, fmt.Errorf("read: %w", err)
			}
			return resp, nil
		}
		if n > 0 {
			resp = append(resp, buf[:n]...)
			if bytes.IndexByte(resp, Terminator) >= 0 || len(resp) >= maxResponseSize {
				return resp, nil
			}
		}
	}

	if len(resp) == 0 {
		return nil, ErrNoResponse
	}
	return resp, nil
}

// Exchange drains stale input, writes cmd and reads the response.
func Exchange(port Port, cmd string, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	Drain(port, opts.DrainTimeout)
	WriteCommand(port, cmd, opts.ReportID)
	return ReadResponse(port, opts)
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialDevice adapts an RS-232 port to the block oriented device interface
type SerialDevice struct {
	port    serial.Port
	timeout time.Duration
}

// OpenSerial opens a serial port for PI30 communication (8N1)
func OpenSerial(portName string, baudRate int) (*SerialDevice, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer: %w", err)
	}

	return &SerialDevice{port: port}, nil
}

// Write writes to the serial port. Zero padding after the terminator is
// harmless to the inverter.
func (d *SerialDevice) Write(p []byte) (int, error) {
	return d.port.Write(p)
}

// ReadWithTimeout reads whatever arrives within timeout
func (d *SerialDevice) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	if timeout != d.timeout {
		if err := d.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
		d.timeout = timeout
	}
	return d.port.Read(p)
}

// Close closes the serial port
func (d *SerialDevice) Close() error {
	return d.port.Close()
}

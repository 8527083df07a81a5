// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport opens inverter ports over USB HID or RS-232.
package transport

import (
	"fmt"
	"io"

	"github.com/Thermoquad/pi30gate/pkg/pi30"
)

// Transport kinds
const (
	KindHID    = "hid"
	KindSerial = "serial"
)

// Device is an open inverter port
type Device interface {
	pi30.Port
	io.Closer
}

// Target describes how to reach one device
type Target struct {
	Kind     string
	Path     string
	BaudRate int
}

// Opener opens a device. The poll loop reopens through it after failures.
type Opener func() (Device, error)

// Open opens a device of the given kind
func Open(t Target) (Device, error) {
	switch t.Kind {
	case KindHID, "":
		dev, err := OpenHID(t.Path)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case KindSerial:
		dev, err := OpenSerial(t.Path, t.BaudRate)
		if err != nil {
			return nil, err
		}
		return dev, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", t.Kind)
	}
}

// OpenerFor returns an Opener bound to t
func OpenerFor(t Target) Opener {
	return func() (Device, error) {
		return Open(t)
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/sstallion/go-hid"
)

// USB ids of the Cypress HID bridge found in most PI30 inverters
const (
	InverterVendorID  = 0x0665
	InverterProductID = 0x5161
)

// HIDDevice wraps a hidraw handle. Read timeouts are reported as zero
// bytes read rather than an error.
type HIDDevice struct {
	*hid.Device
}

// InitHID initializes the HID library. Call once before opening devices.
func InitHID() error {
	return hid.Init()
}

// ExitHID releases the HID library.
func ExitHID() error {
	return hid.Exit()
}

// OpenHID opens a HID device by its path (for example /dev/hidraw0 or a udev symlink)
func OpenHID(path string) (*HIDDevice, error) {
	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open HID device %s: %w", path, err)
	}
	return &HIDDevice{Device: dev}, nil
}

// ReadWithTimeout reads one input report, waiting at most timeout
func (d *HIDDevice) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	n, err := d.Device.ReadWithTimeout(p, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, nil
	}
	return n, err
}

// HIDInfo describes an enumerated HID device
type HIDInfo struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	SerialNumber string
	Interface    int
}

// IsInverter reports whether the device uses the usual inverter USB ids
func (i HIDInfo) IsInverter() bool {
	return i.VendorID == InverterVendorID && i.ProductID == InverterProductID
}

// EnumerateHID lists HID devices. With all set every device is returned,
// otherwise only devices with the inverter USB ids.
func EnumerateHID(all bool) ([]HIDInfo, error) {
	vid, pid := uint16(InverterVendorID), uint16(InverterProductID)
	if all {
		vid, pid = hid.VendorIDAny, hid.ProductIDAny
	}

	var infos []HIDInfo
	err := hid.Enumerate(vid, pid, func(info *hid.DeviceInfo) error {
		infos = append(infos, HIDInfo{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
			SerialNumber: info.SerialNbr,
			Interface:    info.InterfaceNbr,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}
	return infos, nil
}

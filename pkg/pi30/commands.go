// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"fmt"
	"strings"
	"time"
)

// Query command names
const (
	CmdParallelStatus = "QPGS"  // parallel unit status, followed by the unit id
	CmdEnergyDay      = "QED"   // generated energy for a day, followed by yyyymmdd
	CmdGeneralStatus  = "QPIGS" // general status of the unit the port belongs to
	CmdMode           = "QMOD"  // device mode
	CmdRating         = "QPIRI" // rating information
	CmdSerial         = "QID"   // serial number
	CmdFirmware       = "QVFW"  // main CPU firmware version
	CmdProtocolID     = "QPI"   // protocol id
	CmdWarnings       = "QPIWS" // warning status
)

// DateLayout is the date format energy queries take.
const DateLayout = "20060102"

// ParallelStatusCommand builds the QPGS query for a unit id (0-9).
func ParallelStatusCommand(id uint8) string {
	return fmt.Sprintf("%s%d", CmdParallelStatus, id)
}

// EnergyDayCommand builds the QED query for the local date of day.
func EnergyDayCommand(day time.Time) string {
	return CmdEnergyDay + DateStamp(day)
}

// DateStamp formats day the way energy queries and their responses carry it.
func DateStamp(day time.Time) string {
	return day.Format(DateLayout)
}

// IsQuery reports whether cmd is a read-only query. Setting commands
// (P..., M..., F... and friends) are never sent by this package's users.
func IsQuery(cmd string) bool {
	return len(cmd) > 1 && cmd[0] == 'Q' && !strings.ContainsAny(cmd, "\r\n(")
}

// ModeFor returns the decode mode matching a query command.
func ModeFor(cmd string) Mode {
	for _, prefix := range []string{CmdEnergyDay, "QEM", "QEY", "QET"} {
		if strings.HasPrefix(cmd, prefix) {
			return ModeEnergy
		}
	}
	return ModeTelemetry
}

// QueryDate returns the YYYYMMDD date carried by a QED query, or "" for
// any other command.
func QueryDate(cmd string) string {
	if !strings.HasPrefix(cmd, CmdEnergyDay) || len(cmd) != len(CmdEnergyDay)+len(DateLayout) {
		return ""
	}
	date := cmd[len(CmdEnergyDay):]
	if leadingDigits(date) != date {
		return ""
	}
	return date
}

// DescribeCommand returns a short human readable name for a query.
func DescribeCommand(cmd string) string {
	switch {
	case strings.HasPrefix(cmd, CmdParallelStatus):
		return "PARALLEL_STATUS"
	case strings.HasPrefix(cmd, CmdEnergyDay):
		return "ENERGY_DAY"
	case cmd == CmdGeneralStatus:
		return "GENERAL_STATUS"
	case cmd == CmdMode:
		return "DEVICE_MODE"
	case cmd == CmdRating:
		return "RATING_INFO"
	case cmd == CmdSerial:
		return "SERIAL_NUMBER"
	case cmd == CmdFirmware:
		return "FIRMWARE_VERSION"
	case cmd == CmdProtocolID:
		return "PROTOCOL_ID"
	case cmd == CmdWarnings:
		return "WARNING_STATUS"
	default:
		return "UNKNOWN"
	}
}

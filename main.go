// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// pi30gate - PI30 inverter telemetry gateway
//
// Polls PI30 family solar inverters over USB HID or RS-232 and publishes
// their telemetry and a daily power history over HTTP, WebSocket and MQTT.

package main

import (
	"os"

	"github.com/Thermoquad/pi30gate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

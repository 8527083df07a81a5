// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// Direct device flags
	devicePath      string
	deviceTransport string
	baudRate        int
	rawBlocks       bool

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "pi30gate",
	Short: "PI30 inverter telemetry gateway",
	Long: `pi30gate - polls PI30 family solar inverters and publishes their telemetry.

The serve command runs the gateway: one poll loop per configured inverter,
a per-minute power history and HTTP, WebSocket and MQTT publishers.

The remaining commands are diagnostics that talk to a single inverter
directly or to a running gateway.

Connection modes:
  Device:    --device /dev/hidraw0 [--transport hid|serial] [--baud 2400]
  Gateway:   --url ws://host:3000/ws [--username user]

For gateway authentication, the password is read from the PI30GATE_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:       versioninfo.Short(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (defaults to $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	// Direct device flags
	rootCmd.PersistentFlags().StringVarP(&devicePath, "device", "d", "", "Inverter device path")
	rootCmd.PersistentFlags().StringVar(&deviceTransport, "transport", "hid", "Device transport (hid or serial)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 2400, "Baud rate (serial only)")
	rootCmd.PersistentFlags().BoolVar(&rawBlocks, "raw-blocks", false, "Write HID blocks without a report id")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Gateway WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

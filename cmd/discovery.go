// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Thermoquad/pi30gate/internal/transport"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/spf13/cobra"
)

var (
	discoveryAll   bool
	discoveryProbe bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List USB HID inverters",
	Long: `Enumerate USB HID devices that use the usual inverter vendor and product
ids (0665:5161).

With --probe each device found is also sent a QPID query so that devices
that are present but not answering can be told apart.

Examples:
  pi30gate discovery
  pi30gate discovery --all
  pi30gate discovery --probe

Exit codes:
  0 - At least one device found
  1 - No devices found
  2 - Enumeration error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().BoolVar(&discoveryAll, "all", false, "List every HID device, not only inverters")
	discoveryCmd.Flags().BoolVar(&discoveryProbe, "probe", false, "Send a protocol id query to each inverter found")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if err := transport.InitHID(); err != nil {
		fmt.Fprintf(os.Stderr, "HID error: %v\n", err)
		os.Exit(2)
	}
	defer transport.ExitHID()

	fmt.Printf("pi30gate - Device Discovery\n\n")

	infos, err := transport.EnumerateHID(discoveryAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	for _, info := range infos {
		marker := ""
		if info.IsInverter() {
			marker = " [inverter]"
		}
		fmt.Printf("Device found:%s\n", marker)
		fmt.Printf("  Path: %s\n", info.Path)
		fmt.Printf("  ID: %04x:%04x\n", info.VendorID, info.ProductID)
		if info.Manufacturer != "" || info.Product != "" {
			fmt.Printf("  Product: %s\n", strings.TrimSpace(info.Manufacturer+" "+info.Product))
		}
		if info.SerialNumber != "" {
			fmt.Printf("  Serial: %s\n", info.SerialNumber)
		}
		fmt.Printf("  Interface: %d\n", info.Interface)

		if discoveryProbe && info.IsInverter() {
			fmt.Printf("  Protocol: %s\n", probeProtocolID(info.Path))
		}
		fmt.Println()
	}

	fmt.Printf("--- Discovery summary ---\n")
	fmt.Printf("Devices found: %d\n", len(infos))
	if len(infos) == 0 {
		fmt.Printf("No devices discovered. Check the USB cable and udev permissions.\n")
		os.Exit(1)
	}
	return nil
}

func probeProtocolID(path string) string {
	dev, err := transport.OpenHID(path)
	if err != nil {
		return fmt.Sprintf("open failed: %v", err)
	}
	defer dev.Close()

	raw, err := pi30.Exchange(dev, pi30.CmdProtocolID, pi30.DefaultOptions())
	if err != nil {
		return fmt.Sprintf("no answer: %v", err)
	}
	fields, err := pi30.DecodeTelemetry(raw)
	if err != nil {
		return fmt.Sprintf("bad answer: %v", err)
	}
	return strings.Join(fields, " ")
}

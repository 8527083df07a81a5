// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [COMMAND]",
	Short: "Send one query to an inverter and decode the response",
	Long: `Send a single query command and display the exchange in detail.

Shows the framed blocks written to the device, the raw response bytes and
the decoded tokens. The command defaults to QPGS followed by the last digit
of the device id given with --id. Energy queries (QED, QEM, QEY, QET) are
decoded as an energy total.

Only query commands (starting with Q) are accepted; setting commands would
change the inverter configuration.

Examples:
  pi30gate query --device /dev/hidraw0
  pi30gate query --device /dev/ttyUSB0 --transport serial QPIGS
  pi30gate query --device /dev/hidraw0 QED20240101`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

var queryDeviceID uint8

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Uint8Var(&queryDeviceID, "id", 1, "Device id used for the default QPGS command")
}

func runQuery(cmd *cobra.Command, args []string) error {
	command := pi30.ParallelStatusCommand(queryDeviceID)
	if len(args) == 1 {
		command = strings.ToUpper(args[0])
	}
	if !pi30.IsQuery(command) {
		return fmt.Errorf("refusing to send %q: only query commands are supported", command)
	}

	conn, err := OpenDevice()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("pi30gate - Query\n")
	fmt.Printf("Connection: %s\n", conn.Info)
	fmt.Printf("Command: %s (%s)\n\n", command, pi30.DescribeCommand(command))
	fmt.Print(pi30.FormatFrame(command, conn.Options.ReportID))
	fmt.Println()

	start := time.Now()
	raw, err := pi30.Exchange(conn, command, conn.Options)
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("exchange failed after %v: %w", elapsed.Round(time.Millisecond), err)
	}

	fmt.Printf("Response (%d bytes in %v):\n", len(raw), elapsed.Round(time.Millisecond))
	fmt.Printf("  Hex:   %s\n", pi30.FormatHex(raw))
	fmt.Printf("  Text:  %s\n", pi30.FormatPrintable(raw))
	if _, err := pi30.VerifyResponse(raw); err != nil {
		fmt.Printf("  CRC:   %v\n", err)
	} else {
		fmt.Printf("  CRC:   OK\n")
	}
	fmt.Println()

	fields, err := pi30.DecodeFor(command, raw)
	if err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	switch pi30.ModeFor(command) {
	case pi30.ModeEnergy:
		fmt.Printf("Energy: %s kWh\n", fields[0])
	default:
		var names map[int]string
		if strings.HasPrefix(command, pi30.CmdParallelStatus) {
			names = pi30.QPGSFieldNames
		}
		fmt.Printf("Fields (%d):\n", len(fields))
		fmt.Print(pi30.FormatFields(fields, names))
	}
	return nil
}

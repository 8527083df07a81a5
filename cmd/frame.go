// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/spf13/cobra"
)

var frameRaw bool

var frameCmd = &cobra.Command{
	Use:   "frame COMMAND [COMMAND...]",
	Short: "Show how commands are framed on the wire",
	Long: `Print the checksum, the framed bytes and the write blocks for each command
without touching a device.

Checksum bytes that collide with the start marker, carriage return or line
feed are shown before and after escaping.

Examples:
  pi30gate frame QPGS1 QPGS2
  pi30gate frame --raw-blocks QED20240101`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFrame,
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.Flags().BoolVar(&frameRaw, "raw", false, "Print only the framed bytes as hex, one line per command")
}

func runFrame(cmd *cobra.Command, args []string) error {
	for i, arg := range args {
		command := strings.ToUpper(arg)
		if frameRaw {
			fmt.Println(pi30.FormatHex(pi30.EncodeFrame(command)))
			continue
		}
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s (%s)\n", command, pi30.DescribeCommand(command))
		if !pi30.IsQuery(command) {
			fmt.Fprintf(os.Stderr, "warning: %s is not a query command and is never sent by pi30gate\n", command)
		}
		fmt.Print(pi30.FormatFrame(command, !rawBlocks))
	}
	return nil
}

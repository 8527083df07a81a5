// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	wsPingTimeout int
	wsPingCount   int
)

var wsPingCmd = &cobra.Command{
	Use:   "ws_ping",
	Short: "Measure the push cadence of a running gateway",
	Long: `Connect to the gateway WebSocket feed and wait for a number of pushes.

For each push the interval since the previous one and the age of the freshest
device snapshot are printed. JSON and CBOR feeds are both understood; append
?format=cbor to the URL to test the binary encoding.

This is useful for verifying:
  - WebSocket connection is established
  - HTTP Basic authentication works
  - the gateway pushes at its configured interval
  - at least one device is updating

Exit codes:
  0 - All pushes received
  1 - A push timed out or was undecodable
  2 - Connection error`,
	RunE: runWsPing,
}

func init() {
	rootCmd.AddCommand(wsPingCmd)
	wsPingCmd.Flags().IntVar(&wsPingTimeout, "timeout", 5, "Timeout in seconds for each push")
	wsPingCmd.Flags().IntVar(&wsPingCount, "count", 3, "Number of pushes to wait for")
}

// decodePush decodes one feed message in either encoding
func decodePush(msgType int, data []byte) (map[string]telemetry.Snapshot, error) {
	state := map[string]telemetry.Snapshot{}
	if msgType == websocket.BinaryMessage {
		var byID map[uint8]telemetry.Snapshot
		if err := cbor.Unmarshal(data, &byID); err != nil {
			return nil, err
		}
		for id, snap := range byID {
			state[fmt.Sprint(id)] = snap
		}
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// freshest returns the id and age of the most recently updated snapshot
func freshest(state map[string]telemetry.Snapshot, now time.Time) (string, time.Duration, bool) {
	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best, found := "", false
	var bestAge time.Duration
	for _, id := range ids {
		age := state[id].Age(now)
		if !found || age < bestAge {
			best, bestAge, found = id, age, true
		}
	}
	return best, bestAge, found
}

func runWsPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenGateway()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("pi30gate - WebSocket Push Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per push\n", wsPingTimeout)
	fmt.Printf("Count: %d pushes\n\n", wsPingCount)

	successCount := 0
	failCount := 0
	last := time.Now()
	var intervals []time.Duration

	for i := 1; i <= wsPingCount; i++ {
		fmt.Printf("Push %d/%d: ", i, wsPingCount)

		_ = conn.SetReadDeadline(time.Now().Add(time.Duration(wsPingTimeout) * time.Second))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("READ FAILED: %v\n", err)
			failCount++
			// a read error leaves the connection unusable
			failCount += wsPingCount - i
			break
		}
		now := time.Now()
		interval := now.Sub(last)
		last = now

		state, err := decodePush(msgType, data)
		if err != nil {
			fmt.Printf("DECODE FAILED: %v\n", err)
			failCount++
			continue
		}
		if i > 1 {
			intervals = append(intervals, interval)
		}

		id, age, ok := freshest(state, now)
		if ok {
			fmt.Printf("%d devices, %d bytes, interval=%v, freshest=device %s (%s old)\n",
				len(state), len(data), interval.Round(time.Millisecond), id, formatAge(age))
		} else {
			fmt.Printf("no devices yet, %d bytes, interval=%v\n", len(data), interval.Round(time.Millisecond))
		}
		successCount++
	}

	fmt.Printf("\n--- Push statistics ---\n")
	fmt.Printf("%d pushes expected, %d received, %.0f%% loss\n",
		wsPingCount, successCount, float64(failCount)/float64(wsPingCount)*100)
	if len(intervals) > 0 {
		var total time.Duration
		for _, d := range intervals {
			total += d
		}
		fmt.Printf("average interval %v\n", (total / time.Duration(len(intervals))).Round(time.Millisecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

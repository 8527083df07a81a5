// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/pi30gate/pkg/pi30"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	probeShowAll       bool
	probeStatsInterval int
	probeInterval      int
	probeCount         int
	probeLayout        string
	probeDeviceID      uint8
	probeTUI           bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Repeat status queries and track link quality",
	Long: `Send the parallel status query repeatedly and classify every exchange.

Each exchange is recorded as one of:
  - valid response
  - no response before the deadline
  - read error
  - checksum mismatch, partial frame or NAK
  - fields that do not fit the history layout (short or non-numeric)

By default, only failures are displayed. Use --show-all to display valid
responses too. Statistics are printed at a configurable interval and once
more on exit.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().BoolVar(&probeShowAll, "show-all", false, "Show all exchanges (not just failures)")
	probeCmd.Flags().IntVar(&probeStatsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	probeCmd.Flags().IntVar(&probeInterval, "interval", 500, "Delay between exchanges (milliseconds)")
	probeCmd.Flags().IntVar(&probeCount, "count", 0, "Stop after this many exchanges (0 runs until interrupted)")
	probeCmd.Flags().StringVar(&probeLayout, "layout", pi30.LayoutLegacy, "Field layout to validate against (legacy or qpgs)")
	probeCmd.Flags().Uint8Var(&probeDeviceID, "id", 1, "Device id for the QPGS command")
	probeCmd.Flags().BoolVar(&probeTUI, "tui", false, "Use terminal UI")
}

// probeResult is the outcome of one exchange
type probeResult struct {
	at         time.Time
	raw        []byte
	fields     []string
	readErr    error
	decodeErr  error
	validation []pi30.ValidationError
	latency    time.Duration
}

func (r probeResult) ok() bool {
	return r.readErr == nil && r.decodeErr == nil && len(r.validation) == 0
}

// summary is a one-line description of the result
func (r probeResult) summary() string {
	switch {
	case r.readErr != nil:
		return fmt.Sprintf("READ: %v", r.readErr)
	case r.decodeErr != nil:
		return fmt.Sprintf("DECODE: %v [%s]", r.decodeErr, pi30.FormatPrintable(r.raw))
	case len(r.validation) > 0:
		msgs := make([]string, len(r.validation))
		for i, v := range r.validation {
			msgs[i] = v.Message
		}
		return "LAYOUT: " + strings.Join(msgs, "; ")
	default:
		return fmt.Sprintf("OK %d fields in %v", len(r.fields), r.latency.Round(time.Millisecond))
	}
}

// probeOnce runs one exchange and validates the fields against layout
func probeOnce(port pi30.Port, command string, opts pi30.Options, layout pi30.FieldLayout) probeResult {
	start := time.Now()
	raw, err := pi30.Exchange(port, command, opts)
	res := probeResult{at: start, raw: raw, readErr: err, latency: time.Since(start)}
	if err != nil {
		return res
	}
	res.fields, res.decodeErr = pi30.DecodeTelemetry(raw)
	if res.decodeErr == nil {
		res.validation = pi30.ValidateFields(res.fields, layout)
	}
	return res
}

func (r probeResult) record(stats *pi30.Statistics) {
	decodeErr := r.decodeErr
	if decodeErr == nil && len(r.validation) > 0 {
		decodeErr = &r.validation[0]
	}
	stats.Update(r.raw, r.readErr, decodeErr, r.latency)
}

func runProbe(cmd *cobra.Command, args []string) error {
	layout, err := pi30.LayoutByName(probeLayout)
	if err != nil {
		return err
	}

	conn, err := OpenDevice()
	if err != nil {
		return err
	}
	defer conn.Close()

	command := pi30.ParallelStatusCommand(probeDeviceID)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if probeTUI {
		return runProbeTUI(ctx, conn, command, layout)
	}
	return runProbeText(ctx, conn, command, layout)
}

// probeLoop runs exchanges until ctx is done or the count is reached
func probeLoop(ctx context.Context, conn *DeviceConnection, command string, layout pi30.FieldLayout, emit func(probeResult)) {
	interval := time.Duration(probeInterval) * time.Millisecond
	for n := 0; probeCount == 0 || n < probeCount; n++ {
		if ctx.Err() != nil {
			return
		}
		emit(probeOnce(conn, command, conn.Options, layout))

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func runProbeText(ctx context.Context, conn *DeviceConnection, command string, layout pi30.FieldLayout) error {
	fmt.Printf("pi30gate - Probe\n")
	fmt.Printf("Connection: %s\n", conn.Info)
	fmt.Printf("Command: %s, layout: %s\n", command, layout)
	fmt.Printf("Statistics interval: %d seconds\n", probeStatsInterval)
	if probeShowAll {
		fmt.Printf("Mode: All exchanges\n")
	} else {
		fmt.Printf("Mode: Failures only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := pi30.NewStatistics()
	lastStats := time.Now()
	statsEvery := time.Duration(probeStatsInterval) * time.Second

	probeLoop(ctx, conn, command, layout, func(r probeResult) {
		r.record(stats)
		timestamp := r.at.Format("15:04:05.000")
		switch {
		case r.readErr != nil && !errors.Is(r.readErr, pi30.ErrNoResponse):
			fmt.Printf("[%s] \033[1;31m%s\033[0m\n", timestamp, r.summary())
		case !r.ok():
			fmt.Printf("[%s] \033[1;33m%s\033[0m\n", timestamp, r.summary())
		case probeShowAll:
			fmt.Printf("[%s] \033[1;32m%s\033[0m\n", timestamp, r.summary())
		}

		if time.Since(lastStats) >= statsEvery {
			lastStats = time.Now()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	})

	fmt.Println()
	fmt.Print(stats.String())
	return nil
}

func runProbeTUI(ctx context.Context, conn *DeviceConnection, command string, layout pi30.FieldLayout) error {
	ctx, cancel := context.WithCancel(ctx)
	m := initialProbeModel(conn.Info, command, layout, probeShowAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		probeLoop(ctx, conn, command, layout, func(r probeResult) {
			p.Send(probeResultMsg(r))
		})
	}()

	_, err := p.Run()
	// the exchange loop must stop before the device is closed
	cancel()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

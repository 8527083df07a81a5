// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var monitorLayout string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running gateway",
	Long: `Connect to the WebSocket push feed of a running gateway and show every
device snapshot in a live table.

The age column turns red once a device has not updated for 30 seconds.

Example:
  pi30gate monitor --url ws://gateway.local:3000/ws`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorLayout, "layout", pi30.LayoutLegacy, "Field layout for the power columns (legacy or qpgs)")
}

const monitorStaleAfter = 30 * time.Second

type stateMsg map[string]telemetry.Snapshot
type feedErrMsg struct{ err error }

type monitorModel struct {
	connInfo string
	layout   pi30.FieldLayout
	table    table.Model
	state    map[string]telemetry.Snapshot
	updates  int
	lastPush time.Time
	err      error
	quitting bool
}

func newMonitorModel(connInfo string, layout pi30.FieldLayout) monitorModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 4},
			{Title: "Label", Width: 12},
			{Title: "PV (W)", Width: 9},
			{Title: "Load (W)", Width: 9},
			{Title: "Today (kWh)", Width: 12},
			{Title: "Fields", Width: 7},
			{Title: "Age", Width: 24},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(labelStyle.GetForeground())
	t.SetStyles(styles)

	return monitorModel{connInfo: connInfo, layout: layout, table: t}
}

// rows renders the snapshots ordered by device id
func (m monitorModel) rows(now time.Time) []table.Row {
	ids := make([]int, 0, len(m.state))
	for key := range m.state {
		if id, err := strconv.Atoi(key); err == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		snap := m.state[strconv.Itoa(id)]
		pv, load := "-", "-"
		if m.layout.Applies(snap.Fields) {
			pv = fmt.Sprintf("%.0f", m.layout.PVPower(snap.Fields))
			load = fmt.Sprintf("%.0f", m.layout.LoadPowerW(snap.Fields))
		}
		rows = append(rows, table.Row{
			strconv.Itoa(id),
			snap.Label,
			pv,
			load,
			snap.Energy,
			strconv.Itoa(len(snap.Fields)),
			formatAge(snap.Age(now)),
		})
	}
	return rows
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		m.table.SetRows(m.rows(time.Time(msg)))
		return m, tickCmd()
	case stateMsg:
		m.state = msg
		m.updates++
		m.lastPush = time.Now()
		m.table.SetRows(m.rows(m.lastPush))
	case feedErrMsg:
		m.err = msg.err
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("PI30GATE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Layout: %s | Press 'q' to quit", m.connInfo, m.layout.Name)))
	s.WriteString("\n\n")
	s.WriteString(boxStyle.Render(m.table.View()))
	s.WriteString("\n")

	switch {
	case m.err != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ feed closed: %v", m.err)))
	case m.updates == 0:
		s.WriteString(warningStyle.Render("⏳ Waiting for the first push..."))
	default:
		s.WriteString(headerStyle.Render(fmt.Sprintf("%d updates, last %s ago", m.updates, formatAge(time.Since(m.lastPush)))))
	}

	var stale []string
	for id, snap := range m.state {
		if snap.Age(time.Now()) > monitorStaleAfter {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		slices.Sort(stale)
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("stale: " + strings.Join(stale, ", ")))
	}
	s.WriteString("\n")
	return s.String()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	layout, err := pi30.LayoutByName(monitorLayout)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenGateway()
	if err != nil {
		return err
	}
	defer conn.Close()

	p := tea.NewProgram(newMonitorModel(connInfo, layout))

	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				p.Send(feedErrMsg{err: err})
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			var state map[string]telemetry.Snapshot
			if err := json.Unmarshal(data, &state); err != nil {
				p.Send(feedErrMsg{err: err})
				continue
			}
			p.Send(stateMsg(state))
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

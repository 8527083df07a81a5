// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/pi30gate/pkg/pi30"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for failures, false for informational entries
}

// probeModel is the TUI state of the probe command
type probeModel struct {
	connInfo      string
	command       string
	layout        pi30.FieldLayout
	showAll       bool
	stats         *pi30.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	lastFields    []string
	lastPV        float64
	lastLoad      float64
	width         int
	height        int
	quitting      bool
}

type tickMsg time.Time
type probeResultMsg probeResult

func initialProbeModel(connInfo, command string, layout pi30.FieldLayout, showAll bool) probeModel {
	return probeModel{
		connInfo:      connInfo,
		command:       command,
		layout:        layout,
		showAll:       showAll,
		stats:         pi30.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m probeModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m probeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case probeResultMsg:
		r := probeResult(msg)
		r.record(m.stats)
		if r.fields != nil && r.decodeErr == nil {
			m.lastFields = r.fields
			if m.layout.Applies(r.fields) {
				m.lastPV = m.layout.PVPower(r.fields)
				m.lastLoad = m.layout.LoadPowerW(r.fields)
			}
		}
		if !r.ok() {
			m.addLogEntry(r.summary(), true)
		} else if m.showAll {
			m.addLogEntry(r.summary(), false)
		}
	}

	return m, nil
}

func (m *probeModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m probeModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("PI30GATE - PROBE"))
	s.WriteString("\n")
	mode := "Failures only"
	if m.showAll {
		mode = "All exchanges"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | Mode: %s | 'r' reset, 'q' quit",
		m.connInfo, m.command, mode)))
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	var validPercent, failPercent float64
	if m.stats.TotalExchanges > 0 {
		validPercent = float64(m.stats.ValidResponses) * 100.0 / float64(m.stats.TotalExchanges)
		failPercent = float64(m.stats.Failures()) * 100.0 / float64(m.stats.TotalExchanges)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalExchanges)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidResponses, validPercent)),
		labelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Failures(), failPercent)),
	))

	if m.stats.NoResponse > 0 || m.stats.ReadErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("No Response:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.NoResponse)),
			labelStyle.Render("Read Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ReadErrors)),
		))
	}

	if m.stats.ChecksumErrors > 0 || m.stats.PartialResponses > 0 || m.stats.NAKs > 0 || m.stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			labelStyle.Render("Bad Frames:"),
			warningStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors+m.stats.PartialResponses+m.stats.NAKs+m.stats.DecodeErrors)),
			headerStyle.Render("crc"), m.stats.ChecksumErrors,
			headerStyle.Render("partial"), m.stats.PartialResponses,
			headerStyle.Render("nak"), m.stats.NAKs,
		))
	}

	if m.stats.ValidResponses > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Latency:"),
			valueStyle.Render(fmt.Sprintf("min %v / avg %v / max %v",
				m.stats.MinLatency.Round(time.Millisecond),
				m.stats.AverageLatency().Round(time.Millisecond),
				m.stats.MaxLatency.Round(time.Millisecond))),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f exch/s", m.stats.ExchangeRate)),
		labelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return valueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	if m.lastFields != nil {
		s.WriteString(labelStyle.Render("Latest Response:"))
		s.WriteString("\n")

		content := strings.Builder{}
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Fields:"), valueStyle.Render(fmt.Sprintf("%d", len(m.lastFields))),
			labelStyle.Render("PV:"), valueStyle.Render(fmt.Sprintf("%.0f W", m.lastPV)),
			labelStyle.Render("Load:"), valueStyle.Render(fmt.Sprintf("%.0f W", m.lastLoad)),
		))
		for i, ch := range m.layout.PVChannels {
			content.WriteString(fmt.Sprintf("%s %s V x %s A\n",
				labelStyle.Render(fmt.Sprintf("PV%d:", i+1)),
				valueStyle.Render(fieldOrDash(m.lastFields, ch.Voltage)),
				valueStyle.Render(fieldOrDash(m.lastFields, ch.Current)),
			))
		}

		s.WriteString(boxStyle.Render(strings.TrimSuffix(content.String(), "\n")))
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					valueStyle.Render("✓ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func fieldOrDash(fields []string, index int) string {
	if index < 0 || index >= len(fields) || fields[index] == "" {
		return "-"
	}
	return fields[index]
}

// Styles shared by the terminal UIs
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/acmitm/pkg/irbridge"
)

const maxMonitorEvents = 200

// Messages
type tickMsg time.Time

type frameMsg struct {
	packet    *irbridge.Packet
	decodeErr error
}

type syncMsg struct {
	invalidBytes int
}

type connectionLostMsg struct {
	err error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statsLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	statsValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// monitorModel is the bubbletea model of the monitor command.
type monitorModel struct {
	connInfo     string
	tracker      *captureTracker
	events       []monitorEvent
	log          viewport.Model
	synchronized bool
	invalidBytes int
	lost         error
	width        int
	height       int
	quitting     bool
}

func newMonitorModel(connInfo string, tracker *captureTracker) monitorModel {
	m := monitorModel{
		connInfo: connInfo,
		tracker:  tracker,
		log:      viewport.New(76, 10),
		width:    80,
		height:   24,
	}
	m.refreshLog()
	return m
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTick()
}

func monitorTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = max(msg.Width-6, 20)
		m.log.Height = max(msg.Height-18, 5)
		m.refreshLog()

	case tickMsg:
		m.tracker.stats.CalculateRates()
		return m, monitorTick()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addEvents(monitorEvent{time.Now(), fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false})
		} else {
			m.addEvents(monitorEvent{time.Now(), "Synchronized", false})
		}

	case frameMsg:
		m.addEvents(m.tracker.observe(msg.packet, msg.decodeErr)...)

	case connectionLostMsg:
		m.lost = msg.err
		m.addEvents(monitorEvent{time.Now(), fmt.Sprintf("Connection lost: %v", msg.err), true})
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m *monitorModel) addEvents(events ...monitorEvent) {
	if len(events) == 0 {
		return
	}
	m.events = append(m.events, events...)
	if len(m.events) > maxMonitorEvents {
		m.events = m.events[len(m.events)-maxMonitorEvents:]
	}
	m.refreshLog()
}

func (m *monitorModel) refreshLog() {
	if len(m.events) == 0 {
		m.log.SetContent(headerStyle.Render("  (no events yet)"))
		return
	}
	var b strings.Builder
	for _, ev := range m.events {
		ts := headerStyle.Render(ev.at.Format("15:04:05.000"))
		if ev.isError {
			fmt.Fprintf(&b, "%s %s\n", ts, errorStyle.Render("✗ "+ev.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", ts, warningStyle.Render("ℹ "+ev.message))
		}
	}
	m.log.SetContent(b.String())
	m.log.GotoBottom()
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("ACMITM - CAPTURE MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Profile: %s | 'q' quits, arrows scroll",
		m.connInfo, m.tracker.profile.Name())))
	s.WriteString("\n\n")

	switch {
	case m.lost != nil:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStats()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.renderAppliance()))
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.log.View()))

	return s.String()
}

func (m monitorModel) renderStats() string {
	st := m.tracker.stats
	failures := st.CRCErrors + st.DecodeErrors + st.MalformedPackets

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d", st.ValidPackets)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", failures)),
	)
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Captures:"), statsValueStyle.Render(fmt.Sprintf("%d (short %d)", st.Captures, st.ShortCaptures)),
		statsLabelStyle.Render("Decoded:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.DecodedFrames, st.DecodeRate())),
		statsLabelStyle.Render("Tx errors:"), errorStyle.Render(fmt.Sprintf("%d", st.TransmitErrors)),
	)
	fmt.Fprintf(&b, "%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f f/s", st.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate)),
	)
	return b.String()
}

func (m monitorModel) renderAppliance() string {
	var b strings.Builder

	power := headerStyle.Render("unknown")
	if m.tracker.detectedPower != nil {
		power = statsValueStyle.Render(onOff(*m.tracker.detectedPower))
	}
	fmt.Fprintf(&b, "%s %s\n", statsLabelStyle.Render("Detected power:"), power)

	r := m.tracker.lastReading
	if r == nil {
		b.WriteString(statsLabelStyle.Render("Last command:") + " " + headerStyle.Render("none yet"))
		return b.String()
	}
	fmt.Fprintf(&b, "%s %s %s",
		statsLabelStyle.Render("Last command:"),
		statsValueStyle.Render(describeReading(*r)),
		headerStyle.Render(m.tracker.lastReadingAt.Format("15:04:05")),
	)
	return b.String()
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/backplate/pkg/backplate"
	"github.com/Thermoquad/backplate/pkg/comms"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	monitorRefresh = 250 * time.Millisecond
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// engineView is the subset of the engine the monitor reads
type engineView interface {
	State() comms.State
	Sensors() (comms.Reading, bool)
	Info() comms.DeviceInfo
	Stats() comms.Stats
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	engine   engineView
	connInfo string
	started  time.Time

	spinner spinner.Model

	// Snapshot taken on every refresh
	state     comms.State
	reading   comms.Reading
	haveRead  bool
	info      comms.DeviceInfo
	stats     comms.Stats
	readings  readingsData
	haveOther bool

	eventLog      []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type refreshMsg time.Time
type engineFrameMsg struct {
	timestamp time.Time
	frame     backplate.Frame
}

//////////////////////////////////////////////////////////////
// Command
//////////////////////////////////////////////////////////////

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for a running backplate link",
	Long: `Run the backplate link and show it in a terminal UI.

The monitor brings the link up like "run" does and shows the link state,
cached temperature and humidity, device info, engine counters, and a log of
incoming frames. Press 'q' to quit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	t, connInfo, err := NewTransport()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine := newEngine(t)
	p := tea.NewProgram(newMonitorModel(engine, connInfo), tea.WithContext(ctx))

	engine.AddFrameHandler(func(id backplate.MessageType, payload []byte) {
		data := make([]byte, len(payload))
		copy(data, payload)
		p.Send(engineFrameMsg{
			timestamp: time.Now(),
			frame:     backplate.Frame{Role: backplate.RoleResponse, ID: id, Payload: data},
		})
	})

	engine.Start()
	_, err = p.Run()
	engine.Stop()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}

	printEngineSummary(engine)
	return nil
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

func newMonitorModel(engine engineView, connInfo string) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = warningStyle

	return monitorModel{
		engine:        engine,
		connInfo:      connInfo,
		started:       time.Now(),
		spinner:       s,
		state:         comms.StateIdle,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func refreshCmd() tea.Cmd {
	return tea.Tick(monitorRefresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		refreshCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
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

	case refreshMsg:
		m.refresh()
		return m, refreshCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case engineFrameMsg:
		if m.readings.update(msg.timestamp, msg.frame) {
			m.haveOther = true
		}
		summary := strings.TrimSpace(backplate.FormatPayload(msg.frame.ID, msg.frame.Payload))
		if i := strings.IndexByte(summary, '\n'); i >= 0 {
			summary = summary[:i]
		}
		m.addLogEntry(fmt.Sprintf("%s: %s", msg.frame.ID, summary), false)
	}

	return m, nil
}

// refresh snapshots the engine and logs state changes
func (m *monitorModel) refresh() {
	state := m.engine.State()
	if state != m.state {
		prev := m.state
		m.state = state
		isError := prev == comms.StateNormal || (prev != comms.StateIdle && state == comms.StateSerialInit)
		m.addLogEntry(fmt.Sprintf("Link %s -> %s", prev, state), isError)
	}

	m.reading, m.haveRead = m.engine.Sensors()
	m.info = m.engine.Info()
	m.stats = m.engine.Stats()
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("BACKPLATE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Running: %s | Press 'q' to quit",
		m.connInfo, formatUptime(uint64(time.Since(m.started).Milliseconds())))))
	s.WriteString("\n\n")

	// Link state
	if m.state == comms.StateNormal {
		s.WriteString(statsValueStyle.Render("✓ Link up"))
	} else {
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" Bringing link up"))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf(" (%s)", m.state)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.linkView()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Sensors:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.sensorsView()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Frames:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderLog(m.eventLog, m.height-20)))

	return s.String()
}

func (m monitorModel) linkView() string {
	var b strings.Builder

	info := []struct{ label, value string }{
		{"Firmware:", m.info.Version},
		{"Build:", m.info.BuildInfo},
		{"Model:", m.info.ModelAndBslID},
	}
	for _, i := range info {
		if i.value == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render(i.label), statsValueStyle.Render(i.value)))
	}

	st := m.stats
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesDispatched)),
		statsLabelStyle.Render("Keepalives:"), statsValueStyle.Render(fmt.Sprintf("%d", st.KeepalivesSent)),
		statsLabelStyle.Render("History:"), statsValueStyle.Render(fmt.Sprintf("%d", st.HistoricalRequests)),
	))

	crc := statsValueStyle.Render(fmt.Sprintf("%d", st.Parser.CRCRejects))
	if st.Parser.CRCRejects > 0 {
		crc = errorStyle.Render(fmt.Sprintf("%d", st.Parser.CRCRejects))
	}
	retries := statsValueStyle.Render(fmt.Sprintf("%d", st.HandshakeFailures))
	if st.HandshakeFailures > 0 {
		retries = warningStyle.Render(fmt.Sprintf("%d", st.HandshakeFailures))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("CRC Rejects:"), crc,
		statsLabelStyle.Render("Buffer Acks:"), statsValueStyle.Render(fmt.Sprintf("%d", st.BufferAcks)),
		statsLabelStyle.Render("Retries:"), retries,
	))

	return b.String()
}

func (m monitorModel) sensorsView() string {
	if !m.haveRead && !m.haveOther {
		return headerStyle.Render("(no readings yet)")
	}

	var b strings.Builder
	if m.haveRead {
		b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Temperature:"), statsValueStyle.Render(fmt.Sprintf("%.2f°C", m.reading.TemperatureC)),
			statsLabelStyle.Render("Humidity:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", m.reading.HumidityPercent)),
			statsLabelStyle.Render("Updated:"), headerStyle.Render(m.reading.Updated.Format("15:04:05")),
		))
	}

	// Temperature is shown from the engine cache above
	other := m.readings
	other.tempHum = nil
	b.WriteString(other.view())

	return strings.TrimSuffix(b.String(), "\n")
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/backplate/pkg/backplate"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// Latest decoded readings
type readingsData struct {
	timestamp   time.Time
	tempHum     *backplate.TempHumidity
	state       *backplate.BackplateState
	ambientLux  *uint16
	lastMotion  time.Time
	motionCount int
}

// update folds one frame into the readings
func (r *readingsData) update(ts time.Time, f backplate.Frame) bool {
	switch f.ID {
	case backplate.MsgTempHumidityData:
		th, err := backplate.DecodeTempHumidity(f.Payload)
		if err != nil {
			return false
		}
		r.tempHum = &th

	case backplate.MsgBackplateState:
		st, err := backplate.DecodeBackplateState(f.Payload)
		if err != nil {
			return false
		}
		r.state = &st

	case backplate.MsgAmbientLightSensor:
		lux, err := backplate.DecodeAmbientLight(f.Payload)
		if err != nil {
			return false
		}
		r.ambientLux = &lux

	case backplate.MsgPirMotionEvent, backplate.MsgProximityEvent:
		pair, err := backplate.DecodeSensorPair(f.ID, f.Payload)
		if err != nil || !pair.Active() {
			return false
		}
		r.lastMotion = ts
		r.motionCount++

	default:
		return false
	}

	r.timestamp = ts
	return true
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *backplate.Statistics
	eventLog      []logEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  uint64
	lastRejects   uint64
	width         int
	height        int
	quitting      bool
	readings      readingsData
	haveReadings  bool
}

// Messages
type tickMsg time.Time
type frameMsg frameEvent
type syncMsg struct {
	invalidBytes uint64
}
type linkErrMsg struct {
	err error
}

// formatUptime formats a duration in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, p := range []struct {
		n    uint64
		unit string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
	} {
		if p.n == 1 {
			parts = append(parts, "1 "+p.unit)
		} else if p.n > 1 {
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         backplate.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
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

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case linkErrMsg:
		m.addLogEntry(fmt.Sprintf("LINK ERROR: %v", msg.err), true)

	case frameMsg:
		m.stats.Update(msg.frame, msg.errors)
		m.stats.UpdateParser(msg.parserStats)

		if rejects := msg.parserStats.CRCRejects; rejects > m.lastRejects {
			m.addLogEntry(fmt.Sprintf("CRC ERROR: %d frame(s) rejected", rejects-m.lastRejects), true)
			m.lastRejects = rejects
		}

		if m.readings.update(msg.timestamp, msg.frame) {
			m.haveReadings = true
		}

		if len(msg.errors) > 0 {
			for _, err := range msg.errors {
				m.addLogEntry(fmt.Sprintf("%s: %s", msg.frame.ID, err.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s (valid)", msg.frame.ID), false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
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

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("BACKPLATE - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Running: %s | 'r' reset, 'q' quit",
		m.connInfo, mode, formatUptime(uint64(time.Since(m.stats.StartTime).Milliseconds())))))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.statsView()))
	s.WriteString("\n\n")

	// Readings section (only shown once something decoded)
	if m.haveReadings {
		s.WriteString(statsLabelStyle.Render("Latest Readings:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.readings.view()))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderLog(m.eventLog, m.height-15)))

	return s.String()
}

func (m model) statsView() string {
	st := m.stats
	st.CalculateRates()

	totalErrors := st.CRCRejects + st.LengthMismatches + st.AnomalousValues
	var validPercent, errorPercent float64
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(st.TotalFrames+st.CRCRejects)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if st.CRCRejects > 0 || st.NoiseBytes > 0 {
		b.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("CRC Rejects:"), errorStyle.Render(fmt.Sprintf("%d", st.CRCRejects)),
			statsLabelStyle.Render("Noise Bytes:"), warningStyle.Render(fmt.Sprintf("%d", st.NoiseBytes)),
		))
	}

	if st.LengthMismatches > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Short Payloads:"), errorStyle.Render(fmt.Sprintf("%d", st.LengthMismatches)),
		))
	}

	if st.AnomalousValues > 0 {
		b.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", st.AnomalousValues)),
			headerStyle.Render("temp"), st.InvalidTemp,
			headerStyle.Render("humidity"), st.InvalidHumidity,
			headerStyle.Render("voltage"), st.InvalidVoltage,
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))

	return b.String()
}

// view renders the readings that have been seen
func (r readingsData) view() string {
	var b strings.Builder

	if r.tempHum != nil {
		b.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Temperature:"), statsValueStyle.Render(fmt.Sprintf("%.2f°C", r.tempHum.TemperatureC)),
			statsLabelStyle.Render("Humidity:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", r.tempHum.HumidityPercent)),
		))
	}
	if r.state != nil {
		b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Vin:"), statsValueStyle.Render(fmt.Sprintf("%.2fV", r.state.InputVolts)),
			statsLabelStyle.Render("Vop:"), statsValueStyle.Render(fmt.Sprintf("%.3fV", r.state.OutputVolts)),
			statsLabelStyle.Render("Vbat:"), statsValueStyle.Render(fmt.Sprintf("%.3fV", r.state.BatteryVolts)),
		))
	}
	if r.ambientLux != nil {
		b.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Ambient Light:"), statsValueStyle.Render(fmt.Sprintf("%d lux", *r.ambientLux)),
		))
	}
	if r.motionCount > 0 {
		b.WriteString(fmt.Sprintf("%s %s (%d events)\n",
			statsLabelStyle.Render("Last Motion:"), statsValueStyle.Render(r.lastMotion.Format("15:04:05")), r.motionCount,
		))
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// renderLog renders the newest entries that fit in height lines
func renderLog(entries []logEntry, height int) string {
	if height < 5 {
		height = 5
	}

	if len(entries) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	startIdx := len(entries) - height
	if startIdx < 0 {
		startIdx = 0
	}

	var b strings.Builder
	for _, entry := range entries[startIdx:] {
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				errorStyle.Render("✗ "+entry.message),
			))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				warningStyle.Render("ℹ "+entry.message),
			))
		}
	}
	return b.String()
}

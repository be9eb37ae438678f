package main

import (
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/milk9111/physsync/common"
)

const speedBarWidth = 20

var (
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("49"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type tickMsg time.Time

type liveModel struct {
	name    string
	opts    sessionOptions
	s       *session
	fps     int
	paused  bool
	debug   bool
	err     error
	maxSeen float64
}

func runLive(cmd *cobra.Command, args []string) error {
	opts := sessionOptions{
		configPath: configFile,
		preset:     preset,
		transfer:   transfer,
		fps:        frameRate,
		realtime:   true,
		// The view owns the terminal.
		logger: log.New(io.Discard, "", 0),
	}
	name := sceneArg(args)
	s, err := newSession(name, opts)
	if err != nil {
		return err
	}
	defer func() { s.close() }()

	m := liveModel{name: name, opts: opts, s: s, fps: max(frameRate, 1)}
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(liveModel); ok {
		s = fm.s
		return fm.err
	}
	return nil
}

func (m liveModel) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m liveModel) Init() tea.Cmd {
	return m.tick()
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "d":
			m.debug = !m.debug
			if err := m.s.client.EnableDebug(m.debug); err != nil {
				m.err = err
			}
		case "r":
			s, err := newSession(m.name, m.opts)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.s.close()
			m.s, m.err, m.maxSeen = s, nil, 0
		}
	case tickMsg:
		if !m.paused {
			if err := m.s.step(); err != nil {
				m.err = err
			}
			for _, r := range m.s.rows {
				m.maxSeen = math.Max(m.maxSeen, float64(r.LinearSpeed))
			}
		}
		return m, m.tick()
	}
	return m, nil
}

func (m liveModel) View() string {
	s := m.s
	stats := s.worker.Stats()

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s  frame %d  %.1fs", s.scene.Name, s.frame, s.elapsed)))
	b.WriteString("\n")
	for _, kv := range [][2]string{
		{"mode", s.worker.Mode().String()},
		{"state", s.worker.State().String()},
		{"ticks", fmt.Sprintf("%d (%d skipped)", stats.Ticks, stats.Skipped)},
		{"queued", fmt.Sprintf("%d (%d deferred)", stats.Queued, stats.Deferred)},
		{"step", stats.LastStep.Round(time.Microsecond).String()},
		{"debug", fmt.Sprintf("%v (%d lines)", m.debug, s.lines)},
	} {
		b.WriteString(labelStyle.Render(kv[0]) + valueStyle.Render(kv[1]) + "\n")
	}

	var rows strings.Builder
	fmt.Fprintf(&rows, "%-4s %-12s %8s %8s %7s  %s\n", "slot", "body", "x", "y", "angle", "speed")
	for _, r := range s.rows {
		frac := float32(0)
		if m.maxSeen > 0 {
			frac = float32(float64(r.LinearSpeed) / m.maxSeen)
		}
		n := int(common.Lerp(0, speedBarWidth, frac))
		bar := barStyle.Render(strings.Repeat("█", n)) + strings.Repeat("·", speedBarWidth-n)
		fmt.Fprintf(&rows, "%-4d %-12s %8.2f %8.2f %7.2f  %s %.2f\n",
			r.Slot, r.Body, r.Pose.X, r.Pose.Y, r.Pose.Angle, bar, r.LinearSpeed)
	}
	b.WriteString(panelStyle.Render(strings.TrimRight(rows.String(), "\n")))

	if len(s.failed) > 0 {
		b.WriteString("\n" + errorStyle.Render("failed: "+strings.Join(s.failed, "; ")))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}
	b.WriteString(helpStyle.Render("\nspace pause · d debug · r reload · q quit"))
	return b.String()
}

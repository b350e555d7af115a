// Package monitor implements the live SCM10 terminal view using
// BubbleTea: the current reading, a sparkline of the session history
// coloured against the alarm thresholds, and start/stop controls.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/scm10/internal/alarm"
	"github.com/luki/scm10/internal/chart"
	"github.com/luki/scm10/internal/history"
	"github.com/luki/scm10/internal/sensor"
	"github.com/luki/scm10/internal/session"
)

const (
	periodStep = 100 * time.Millisecond
	minPeriod  = 100 * time.Millisecond
	maxPeriod  = 60 * time.Second
)

// Controller is the session surface the view drives.
type Controller interface {
	Start(session.Params) error
	Stop()
	State() session.State
	SetPeriod(time.Duration) error
	AlarmConfig() alarm.Config
	SetAlarmConfig(alarm.Config)
	Snapshot() []sensor.Sample
	Stats() history.Stats
	LogPath() string
}

// ── Messages ─────────────────────────────────────────────────────────

type eventMsg session.Event

func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live monitor.
type Model struct {
	ctrl      Controller
	events    <-chan session.Event
	params    session.Params
	target    string
	autoStart bool

	last     sensor.Sample
	hasLast  bool
	outcome  alarm.Outcome
	pollErr  error
	err      error
	lastPoll time.Time
	started  time.Time
	stopping bool
	width    int
	height   int
}

// New builds the monitor. Events must come from a subscription on the
// same session as ctrl. With autoStart the session starts on Init.
func New(ctrl Controller, events <-chan session.Event, params session.Params, target string, autoStart bool) Model {
	return Model{
		ctrl:      ctrl,
		events:    events,
		params:    params,
		target:    target,
		autoStart: autoStart,
	}
}

func (m Model) startCmd() tea.Msg {
	if err := m.ctrl.Start(m.params); err != nil {
		return errMsg{err}
	}
	return nil
}

// stoppedMsg reports that a stop issued from the view has completed.
type stoppedMsg struct{ quit bool }

// stopCmd runs Stop off the update loop; it waits for an in-flight poll.
func (m Model) stopCmd(quit bool) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Stop()
		return stoppedMsg{quit: quit}
	}
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	if m.autoStart {
		return tea.Batch(waitForEvent(m.events), m.startCmd)
	}
	return waitForEvent(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case errMsg:
		m.err = msg.err

	case stoppedMsg:
		m.stopping = false
		if msg.quit {
			return m, tea.Quit
		}

	case eventMsg:
		m.apply(session.Event(msg))
		return m, waitForEvent(m.events)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.stopping = true
		return m, m.stopCmd(true)
	case "s", " ":
		if m.stopping {
			return m, nil
		}
		m.err = nil
		if m.ctrl.State() == session.Polling {
			m.stopping = true
			return m, m.stopCmd(false)
		}
		return m, m.startCmd
	case "+", "=":
		m.setPeriod(m.params.Period + periodStep)
	case "-", "_":
		m.setPeriod(m.params.Period - periodStep)
	case "a":
		cfg := m.ctrl.AlarmConfig()
		cfg.Enabled = !cfg.Enabled
		m.ctrl.SetAlarmConfig(cfg)
	}
	return m, nil
}

func (m *Model) setPeriod(d time.Duration) {
	d = d.Round(periodStep)
	d = max(minPeriod, min(d, maxPeriod))
	if err := m.ctrl.SetPeriod(d); err != nil {
		m.err = err
		return
	}
	m.params.Period = d
}

func (m *Model) apply(ev session.Event) {
	switch ev.Kind {
	case session.EventStarted:
		m.started = ev.Time
		m.hasLast = false
		m.pollErr = nil
		m.outcome = alarm.Outcome{}
	case session.EventStopped:
		m.outcome = alarm.Outcome{}
	case session.EventSample:
		m.last = ev.Sample
		m.hasLast = true
		m.outcome = ev.Alarm
		m.lastPoll = ev.Time
		m.pollErr = nil
	case session.EventPollFailed:
		m.pollErr = ev.Err
		m.lastPoll = ev.Time
	case session.EventLogWriteFailed:
		m.err = fmt.Errorf("log: %w", ev.Err)
	case session.EventNotificationFailed:
		m.err = fmt.Errorf("e-mail: %w", ev.Err)
	}
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorCold     = lipgloss.Color("39")
	colorCrit     = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) band() chart.Band {
	cfg := m.ctrl.AlarmConfig()
	return chart.Band{
		Low:     cfg.Low,
		High:    cfg.High,
		HasLow:  cfg.Enabled && cfg.LowEnabled,
		HasHigh: cfg.Enabled && cfg.HighEnabled,
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}
	contentWidth := max(m.width-2, 40)

	sections := []string{m.renderTitleBar(contentWidth)}
	if m.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.err)))
	}
	sections = append(sections, m.renderPanel(contentWidth), m.renderFooter(contentWidth))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SCM10 MONITOR")

	dim := lipgloss.NewStyle().Foreground(colorDim)
	parts := []string{dim.Render(m.target)}

	if m.stopping {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorWarn).Render("STOPPING"))
	} else if m.ctrl.State() == session.Polling {
		parts = append(parts,
			lipgloss.NewStyle().Foreground(colorOk).Bold(true).Render("POLLING"),
			dim.Render("every "+m.params.Period.String()))
		if !m.started.IsZero() {
			parts = append(parts, dim.Render("up "+fmtDuration(time.Since(m.started))))
		}
	} else {
		parts = append(parts, dim.Render("IDLE"))
	}
	if !m.lastPoll.IsZero() {
		parts = append(parts, dim.Render(m.lastPoll.Format("15:04:05")))
	}
	if p := m.ctrl.LogPath(); p != "" && m.ctrl.State() == session.Polling {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorCrit).Render("REC")+dim.Render(" "+p))
	}

	sep := dim.Render(" │ ")
	right := strings.Join(parts, sep)
	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderPanel(totalWidth int) string {
	band := m.band()
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	var rows []string

	reading := dimS.Render("waiting for data...")
	if m.hasLast {
		reading = chart.RenderTempValue(m.last.Kelvin, band) +
			dimS.Render(fmt.Sprintf("  t=%.1fs", m.last.ElapsedSeconds()))
	}
	rows = append(rows, m.renderAlarmTag()+"  "+reading)
	if m.pollErr != nil {
		rows = append(rows, lipgloss.NewStyle().Foreground(colorWarn).Render("poll: "+m.pollErr.Error()))
	}

	chartWidth := min(max(totalWidth-8, 15), 200)
	samples := m.ctrl.Snapshot()
	if len(samples) > chartWidth {
		samples = samples[len(samples)-chartWidth:]
	}
	lo, hi := chart.Range(samples, band)

	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")
	rows = append(rows, frameL+chart.RenderSparkline(samples, chartWidth, lo, hi, band)+frameR)
	if tl := chart.RenderTimeline(samples, chartWidth); strings.TrimSpace(tl) != "" {
		rows = append(rows, " "+tl)
	}
	if m.hasLast {
		rows = append(rows, " "+chart.RenderThresholdScale(m.last.Kelvin, lo, hi, band, chartWidth))
	}

	st := m.ctrl.Stats()
	stats := dimS.Render("n ") + valS.Render(fmt.Sprintf("%d", st.Count))
	if st.Count > 0 {
		stats += dimS.Render("  avg ") + valS.Render(fmt.Sprintf("%.4f", st.Avg)) +
			dimS.Render("  lo ") + valS.Render(fmt.Sprintf("%.4f", st.Min)) +
			dimS.Render("  pk ") + valS.Render(fmt.Sprintf("%.4f", st.Peak))
	}
	if band.HasLow {
		stats += dimS.Render("  L ") + lipgloss.NewStyle().Foreground(colorCold).Render(fmt.Sprintf("%g", band.Low))
	}
	if band.HasHigh {
		stats += dimS.Render("  H ") + lipgloss.NewStyle().Foreground(colorCrit).Render(fmt.Sprintf("%g", band.High))
	}
	rows = append(rows, stats)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderAlarmTag() string {
	cfg := m.ctrl.AlarmConfig()
	switch {
	case !cfg.Enabled:
		return lipgloss.NewStyle().Foreground(colorDim).Render("alarm off")
	case m.outcome.InAlarm:
		return lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Render("ALARM " + m.outcome.Side())
	default:
		return lipgloss.NewStyle().Foreground(colorOk).Render("alarm armed")
	}
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	lbl := lipgloss.NewStyle().Foreground(colorLabel)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│")

	legend := lipgloss.NewStyle().Foreground(colorOk).Render("██") + dimS.Render(" ok ") +
		lipgloss.NewStyle().Foreground(colorWarn).Render("██") + dimS.Render(" near ") +
		lipgloss.NewStyle().Foreground(colorCold).Render("██") + dimS.Render(" low ") +
		lipgloss.NewStyle().Foreground(colorCrit).Render("██") + dimS.Render(" high ") +
		tickS + dimS.Render(" 1min")

	keys := dimS.Render("q") + lbl.Render(":quit") +
		dimS.Render("  s") + lbl.Render(":start/stop") +
		dimS.Render("  +/-") + lbl.Render(":period") +
		dimS.Render("  a") + lbl.Render(":alarm")

	gap := max(width-lipgloss.Width(legend)-lipgloss.Width(keys)-4, 1)
	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

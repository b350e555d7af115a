package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/scm10/internal/alarm"
	"github.com/luki/scm10/internal/history"
	"github.com/luki/scm10/internal/sensor"
	"github.com/luki/scm10/internal/session"
)

type fakeController struct {
	state    session.State
	startErr error
	started  []session.Params
	stops    int
	period   time.Duration
	alarmCfg alarm.Config
	samples  []sensor.Sample
}

func (f *fakeController) Start(p session.Params) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, p)
	f.state = session.Polling
	return nil
}

func (f *fakeController) Stop() {
	f.stops++
	f.state = session.Idle
}

func (f *fakeController) State() session.State { return f.state }

func (f *fakeController) SetPeriod(d time.Duration) error {
	f.period = d
	return nil
}

func (f *fakeController) AlarmConfig() alarm.Config { return f.alarmCfg }
func (f *fakeController) SetAlarmConfig(cfg alarm.Config) { f.alarmCfg = cfg }
func (f *fakeController) Snapshot() []sensor.Sample { return f.samples }
func (f *fakeController) LogPath() string { return "logs/scm10_log_20260101_000000.csv" }

func (f *fakeController) Stats() history.Stats {
	r := history.New(0)
	for _, s := range f.samples {
		r.Append(s)
	}
	return r.Stats()
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(fc *fakeController) Model {
	return New(fc, make(chan session.Event), session.Params{Period: time.Second}, "scm10.lab:2000", false)
}

func TestStartStopKey(t *testing.T) {
	fc := &fakeController{}
	m := newTestModel(fc)

	next, cmd := m.Update(key("s"))
	if cmd == nil {
		t.Fatal("expected start command")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("start returned %v", msg)
	}
	if len(fc.started) != 1 || fc.started[0].Period != time.Second {
		t.Fatalf("started: %+v", fc.started)
	}

	next, cmd = next.(Model).Update(key("s"))
	if fc.stops != 0 {
		t.Fatal("Stop ran inside Update")
	}
	if !strings.Contains(withWidth(next, 100).View(), "STOPPING") {
		t.Error("pending stop not shown")
	}
	if cmd == nil {
		t.Fatal("expected stop command")
	}
	msg := cmd()
	if fc.stops != 1 || fc.state != session.Idle {
		t.Errorf("stops=%d state=%v", fc.stops, fc.state)
	}
	next, cmd = next.(Model).Update(msg)
	if cmd != nil {
		t.Error("plain stop should not quit")
	}
	if next.(Model).stopping {
		t.Error("stopping flag not cleared")
	}
}

func withWidth(m tea.Model, w int) Model {
	mm := m.(Model)
	mm.width = w
	return mm
}

func TestStartFailureShown(t *testing.T) {
	fc := &fakeController{startErr: errors.New("session: connect failed: dial tcp: refused")}
	m := newTestModel(fc)
	_, cmd := m.Update(key("s"))
	next, _ := m.Update(cmd())
	m = next.(Model)
	m.width = 100
	if !strings.Contains(m.View(), "connect failed") {
		t.Error("start error not rendered")
	}
}

func TestPeriodKeysClamp(t *testing.T) {
	fc := &fakeController{}
	m := newTestModel(fc)
	m.params.Period = 200 * time.Millisecond
	for i := 0; i < 5; i++ {
		next, _ := m.Update(key("-"))
		m = next.(Model)
	}
	if m.params.Period != minPeriod || fc.period != minPeriod {
		t.Errorf("lower clamp: %v / %v", m.params.Period, fc.period)
	}

	m.params.Period = maxPeriod
	next, _ := m.Update(key("+"))
	m = next.(Model)
	if m.params.Period != maxPeriod {
		t.Errorf("upper clamp: %v", m.params.Period)
	}

	m.params.Period = time.Second
	next, _ = m.Update(key("+"))
	if got := next.(Model).params.Period; got != 1100*time.Millisecond {
		t.Errorf("step: %v", got)
	}
}

func TestAlarmToggle(t *testing.T) {
	fc := &fakeController{alarmCfg: alarm.Config{HighEnabled: true, High: 300}}
	m := newTestModel(fc)
	m.Update(key("a"))
	if !fc.alarmCfg.Enabled || fc.alarmCfg.High != 300 {
		t.Errorf("toggle on: %+v", fc.alarmCfg)
	}
	m.Update(key("a"))
	if fc.alarmCfg.Enabled || !fc.alarmCfg.HighEnabled {
		t.Errorf("toggle off lost thresholds: %+v", fc.alarmCfg)
	}
}

func TestQuitStops(t *testing.T) {
	fc := &fakeController{state: session.Polling}
	m := newTestModel(fc)
	next, cmd := m.Update(key("q"))
	if fc.stops != 0 {
		t.Fatal("Stop ran inside Update")
	}
	if cmd == nil {
		t.Fatal("expected stop command")
	}
	msg := cmd()
	if fc.stops != 1 {
		t.Errorf("quit did not stop the session")
	}
	_, cmd = next.Update(msg)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestSampleEventRendered(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.Local)
	s := sensor.Sample{Time: now, Elapsed: 3 * time.Second, Kelvin: 305.5}
	fc := &fakeController{
		state:    session.Polling,
		alarmCfg: alarm.Config{Enabled: true, HighEnabled: true, High: 300},
		samples:  []sensor.Sample{s},
	}
	events := make(chan session.Event, 1)
	m := New(fc, events, session.Params{Period: time.Second}, "scm10.lab:2000", false)
	m.width = 120

	next, cmd := m.Update(eventMsg(session.Event{Kind: session.EventSample, Time: now, Sample: s, Alarm: alarm.Outcome{InAlarm: true, High: true}}))
	if cmd == nil {
		t.Fatal("model stopped listening for events")
	}
	view := next.(Model).View()
	for _, want := range []string{"SCM10 MONITOR", "POLLING", "305.5000 K", "ALARM HIGH", "REC"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	events <- session.Event{Kind: session.EventStopped}
	if msg := cmd(); msg == nil {
		t.Error("expected the next event from the channel")
	}
	close(events)
	if msg := waitForEvent(events)(); msg != nil {
		t.Errorf("closed channel: got %v", msg)
	}
}

func TestPollFailureRendered(t *testing.T) {
	fc := &fakeController{state: session.Polling}
	m := newTestModel(fc)
	m.width = 100
	next, _ := m.Update(eventMsg(session.Event{Kind: session.EventPollFailed, Time: time.Now(), Err: errors.New("transport: timeout")}))
	if !strings.Contains(next.(Model).View(), "poll: transport: timeout") {
		t.Error("poll failure not rendered")
	}
}

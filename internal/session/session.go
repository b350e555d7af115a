// Package session runs the periodic temperature poll against one
// instrument: it owns the transport, the CSV log, the history ring and
// the alarm evaluator for the lifetime of a Start/Stop cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luki/scm10/internal/alarm"
	"github.com/luki/scm10/internal/history"
	"github.com/luki/scm10/internal/protocol"
	"github.com/luki/scm10/internal/sensor"
	"github.com/luki/scm10/internal/store"
	"github.com/luki/scm10/internal/transport"
)

// DefaultLogFolder is used when Params.LogFolder is empty.
const DefaultLogFolder = "logs"

var (
	ErrConnectFailed  = errors.New("session: connect failed")
	ErrAlreadyPolling = errors.New("session: already polling")
	ErrBusy           = errors.New("session: busy polling")
	ErrInvalidPeriod  = errors.New("session: period must be positive")
)

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Params configures one Start.
type Params struct {
	Transport transport.Config
	Protocol  protocol.Config
	Period    time.Duration
	LogFolder string
}

// Options are the collaborators of a Session. Zero values are usable.
type Options struct {
	NewTransport func(transport.Config, *slog.Logger) transport.Transport
	Notifier     alarm.Notifier
	Beeper       alarm.Beeper
	Logger       *slog.Logger
	MaxPoints    int // 0 keeps every sample
	Now          func() time.Time
}

// sessionLog is the per-session CSV writer.
type sessionLog interface {
	Append(sensor.Sample) error
	Close() error
	Path() string
}

// startLog is swapped out by tests.
var startLog = func(folder string, start time.Time) (sessionLog, error) {
	l, err := store.StartSession(folder, start)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// run holds what belongs to one Polling period.
type run struct {
	tr       transport.Transport
	proto    protocol.Config
	log      sessionLog // nil when the log could not be created
	start    time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	periodCh chan time.Duration
}

type Session struct {
	newTransport func(transport.Config, *slog.Logger) transport.Transport
	logger       *slog.Logger
	now          func() time.Time

	ring   *history.Ring
	eval   *alarm.Evaluator
	events broker

	// life serializes Start, Stop and Identify.
	life sync.Mutex
	cur  *run

	mu       sync.RWMutex
	state    State
	period   time.Duration
	alarmCfg alarm.Config
	logPath  string
}

func New(opts Options) *Session {
	s := &Session{
		newTransport: opts.NewTransport,
		logger:       opts.Logger,
		now:          opts.Now,
		ring:         history.New(opts.MaxPoints),
	}
	if s.newTransport == nil {
		s.newTransport = transport.New
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.eval = alarm.NewEvaluator(opts.Notifier, opts.Beeper, s.logger)
	s.eval.OnNotifyError = func(err error) {
		s.publish(Event{Kind: EventNotificationFailed, Err: err})
	}
	return s
}

// Subscribe returns a channel of session events and a function that
// unsubscribes and closes it.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

func (s *Session) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	s.events.publish(ev)
}

// Start opens the transport and begins polling: once immediately, then
// every p.Period. Only a transport failure is fatal.
func (s *Session) Start(p Params) error {
	if p.Period <= 0 {
		return ErrInvalidPeriod
	}
	s.life.Lock()
	defer s.life.Unlock()
	if s.cur != nil {
		return ErrAlreadyPolling
	}

	tr := s.newTransport(p.Transport, s.logger)
	if err := tr.Open(); err != nil {
		tr.Close()
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, p.Transport.Target(), err)
	}

	start := s.now()
	folder := p.LogFolder
	if folder == "" {
		folder = DefaultLogFolder
	}
	logFile, err := startLog(folder, start)
	logPath := ""
	if err != nil {
		s.logger.Warn("session log unavailable", "folder", folder, "error", err)
		s.publish(Event{Kind: EventLogWriteFailed, Err: err})
	} else {
		logPath = logFile.Path()
	}

	s.ring.Reset()
	s.eval.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		tr:       tr,
		proto:    p.Protocol,
		log:      logFile,
		start:    start,
		cancel:   cancel,
		done:     make(chan struct{}),
		periodCh: make(chan time.Duration, 1),
	}
	s.cur = r

	s.mu.Lock()
	s.state = Polling
	s.period = p.Period
	s.logPath = logPath
	s.mu.Unlock()

	s.logger.Info("session started", "target", p.Transport.Target(), "period", p.Period, "log", logPath)
	s.publish(Event{Kind: EventStarted, Time: start, LogPath: logPath})

	go s.loop(ctx, r, p.Period)
	return nil
}

// Stop cancels polling, waits for an in-flight poll, and releases the
// transport and the log. Release failures are logged. Calling Stop on
// an idle session does nothing.
func (s *Session) Stop() {
	s.life.Lock()
	defer s.life.Unlock()
	r := s.cur
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
	r.tr.Close()
	if r.log != nil {
		if err := r.log.Close(); err != nil {
			s.logger.Warn("closing session log", "path", r.log.Path(), "error", err)
		}
	}
	s.eval.Reset()
	s.cur = nil

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()

	s.logger.Info("session stopped", "samples", s.ring.Len())
	s.publish(Event{Kind: EventStopped})
}

func (s *Session) loop(ctx context.Context, r *run, period time.Duration) {
	defer close(r.done)

	s.poll(r)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.periodCh:
			ticker.Reset(d)
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.poll(r)
		}
	}
}

func (s *Session) poll(r *run) {
	raw, err := r.tr.Query(r.proto.TempQuery, r.proto.Terminator)
	if err != nil {
		s.logger.Debug("poll failed", "error", err)
		s.publish(Event{Kind: EventPollFailed, Err: err})
		return
	}
	kelvin, err := sensor.Parse(raw)
	if err != nil {
		s.logger.Debug("unparseable response", "response", raw, "error", err)
		s.publish(Event{Kind: EventPollFailed, Err: err})
		return
	}

	now := s.now()
	sample := sensor.Sample{Time: now, Elapsed: now.Sub(r.start), Kelvin: kelvin}
	s.ring.Append(sample)
	if r.log != nil {
		if err := r.log.Append(sample); err != nil {
			s.logger.Warn("session log write failed", "error", err)
			s.publish(Event{Kind: EventLogWriteFailed, Time: now, Err: err})
		}
	}
	outcome := s.eval.Evaluate(kelvin, s.AlarmConfig())
	s.publish(Event{Kind: EventSample, Time: now, Sample: sample, Alarm: outcome})
}

// SetPeriod changes the poll interval. A running session picks it up
// at its next tick.
func (s *Session) SetPeriod(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidPeriod
	}
	s.life.Lock()
	defer s.life.Unlock()
	s.mu.Lock()
	s.period = d
	s.mu.Unlock()
	if r := s.cur; r != nil {
		select {
		case <-r.periodCh:
		default:
		}
		r.periodCh <- d
	}
	return nil
}

func (s *Session) Period() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.period
}

// SetAlarmConfig replaces the alarm settings used from the next poll on.
func (s *Session) SetAlarmConfig(cfg alarm.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarmCfg = cfg
}

func (s *Session) AlarmConfig() alarm.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alarmCfg
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LogPath is the CSV file of the current or last session, empty when
// the log could not be created.
func (s *Session) LogPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logPath
}

func (s *Session) InAlarm() bool { return s.eval.State().InAlarm }

func (s *Session) Snapshot() []sensor.Sample { return s.ring.Snapshot() }

func (s *Session) Latest() (sensor.Sample, bool) { return s.ring.Latest() }

func (s *Session) Stats() history.Stats { return s.ring.Stats() }

// Identify opens a separate transport, sends the identification query
// and closes it again. It is refused while polling.
func (s *Session) Identify(cfg transport.Config, proto protocol.Config) (string, error) {
	s.life.Lock()
	defer s.life.Unlock()
	if s.cur != nil {
		return "", ErrBusy
	}
	tr := s.newTransport(cfg, s.logger)
	if err := tr.Open(); err != nil {
		tr.Close()
		return "", fmt.Errorf("%w: %s: %w", ErrConnectFailed, cfg.Target(), err)
	}
	defer tr.Close()
	return tr.Query(proto.IDNQuery, proto.Terminator)
}

// Package alarm evaluates readings against low/high thresholds and
// rate-limits the e-mail notifications sent while the alarm persists.
package alarm

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Notifier delivers an alarm notification, typically by e-mail.
type Notifier interface {
	SendAlarmNotification(body string) error
}

// Beeper produces an audible alert.
type Beeper interface {
	Beep() error
}

// Config holds the alarm settings. Thresholds are kept when Enabled is
// false so alarms can be switched off without losing them.
type Config struct {
	Enabled                 bool
	LowEnabled              bool
	Low                     float64
	HighEnabled             bool
	High                    float64
	BeepEnabled             bool
	EmailEnabled            bool
	EmailMinIntervalMinutes int
}

// MinInterval is the e-mail debounce interval, never below one minute.
func (c Config) MinInterval() time.Duration {
	m := c.EmailMinIntervalMinutes
	if m < 1 {
		m = 1
	}
	return time.Duration(m) * time.Minute
}

// State is the evaluator memory carried between samples.
type State struct {
	InAlarm            bool
	LastNotificationAt time.Time // zero until the first notification
}

// Outcome reports what one evaluation decided.
type Outcome struct {
	InAlarm  bool
	Low      bool
	High     bool
	Beeped   bool
	Notified bool
}

// Side returns "LOW" or "HIGH" for an alarm outcome, LOW taking priority.
func (o Outcome) Side() string {
	switch {
	case o.Low:
		return "LOW"
	case o.High:
		return "HIGH"
	default:
		return ""
	}
}

// Evaluator owns the alarm State of one session.
type Evaluator struct {
	notifier Notifier
	beeper   Beeper
	logger   *slog.Logger

	// OnNotifyError is called from the dispatch goroutine when a
	// notification could not be sent.
	OnNotifyError func(error)

	now      func() time.Time
	dispatch func(func())

	mu    sync.Mutex
	state State
}

// NewEvaluator returns an evaluator sending through notifier and
// beeping through beeper. Either may be nil.
func NewEvaluator(notifier Notifier, beeper Beeper, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		notifier: notifier,
		beeper:   beeper,
		logger:   logger,
		now:      time.Now,
		dispatch: func(f func()) { go f() },
	}
}

// State returns a copy of the current alarm memory.
func (e *Evaluator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reset forgets the alarm flag and the notification time.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{}
}

// Evaluate checks temperature against cfg, beeping and notifying as
// configured. Notifications are dispatched without waiting for delivery.
func (e *Evaluator) Evaluate(temperature float64, cfg Config) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !cfg.Enabled {
		e.state.InAlarm = false
		return Outcome{}
	}

	out := Outcome{
		Low:  cfg.LowEnabled && temperature < cfg.Low,
		High: cfg.HighEnabled && temperature > cfg.High,
	}
	out.InAlarm = out.Low || out.High

	if out.InAlarm && cfg.BeepEnabled && e.beeper != nil {
		if err := e.beeper.Beep(); err != nil {
			e.logger.Debug("beep failed", "error", err)
		}
		out.Beeped = true
	}

	if out.InAlarm && cfg.EmailEnabled && e.notifier != nil {
		now := e.now()
		last := e.state.LastNotificationAt
		if last.IsZero() || now.Sub(last) >= cfg.MinInterval() {
			e.state.LastNotificationAt = now
			out.Notified = true
			e.send(Body(out.Side(), temperature))
		}
	}

	e.state.InAlarm = out.InAlarm
	return out
}

func (e *Evaluator) send(body string) {
	notifier, onErr, logger := e.notifier, e.OnNotifyError, e.logger
	e.dispatch(func() {
		if err := notifier.SendAlarmNotification(body); err != nil {
			logger.Warn("alarm notification failed", "error", err)
			if onErr != nil {
				onErr(err)
			}
		}
	})
}

// Body formats the notification text.
func Body(side string, temperature float64) string {
	return fmt.Sprintf("SCM10 alarm triggered: %s\nTemperature: %.6f K", side, temperature)
}

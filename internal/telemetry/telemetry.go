// Package telemetry forwards session events to MQTT and keeps the last
// reading in Redis for dashboards.
package telemetry

import (
	"time"

	"github.com/luki/scm10/internal/session"
)

// Reading is the JSON form of a sample event.
type Reading struct {
	Time     time.Time `json:"time"`
	ElapsedS float64   `json:"elapsed_s"`
	Kelvin   float64   `json:"temperature_k"`
	InAlarm  bool      `json:"in_alarm"`
	Side     string    `json:"alarm_side,omitempty"`
}

func readingOf(ev session.Event) Reading {
	return Reading{
		Time:     ev.Sample.Time,
		ElapsedS: ev.Sample.ElapsedSeconds(),
		Kelvin:   ev.Sample.Kelvin,
		InAlarm:  ev.Alarm.InAlarm,
		Side:     ev.Alarm.Side(),
	}
}

// Status is the JSON form of every other event.
type Status struct {
	Time    time.Time `json:"time"`
	Event   string    `json:"event"`
	Error   string    `json:"error,omitempty"`
	LogPath string    `json:"log_path,omitempty"`
}

func statusOf(ev session.Event) Status {
	st := Status{Time: ev.Time, Event: ev.Kind.String(), LogPath: ev.LogPath}
	if ev.Err != nil {
		st.Error = ev.Err.Error()
	}
	return st
}

// Package sensor turns SCM10 replies into temperature samples. The
// instrument answers queries with free text that may echo the command or
// carry a unit suffix, so parsing is deliberately lenient.
package sensor

import "time"

// Sample is one accepted temperature reading of a monitoring session.
type Sample struct {
	Time    time.Time     // wall clock at the time of the poll
	Elapsed time.Duration // since the session started
	Kelvin  float64
}

// ElapsedSeconds returns Elapsed as fractional seconds.
func (s Sample) ElapsedSeconds() float64 {
	return s.Elapsed.Seconds()
}

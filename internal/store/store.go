// Package store writes the per-session CSV log consumed by the history
// tools. One file is created per monitoring session:
//
//	<folder>/scm10_log_YYYYMMDD_HHMMSS.csv
//
// with the header timestamp_iso,elapsed_s,temperature_k.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/luki/scm10/internal/sensor"
)

const (
	filePrefix = "scm10_log_"
	fileLayout = "20060102_150405"
	timeLayout = "2006-01-02T15:04:05"
)

// Header is the first row of every session log.
var Header = []string{"timestamp_iso", "elapsed_s", "temperature_k"}

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("session log closed")

// FileName returns the log file name for a session started at start.
func FileName(start time.Time) string {
	return filePrefix + start.Format(fileLayout) + ".csv"
}

// SessionLogger appends samples to one session file, flushing each row
// to disk so an abrupt exit loses at most the row being written.
type SessionLogger struct {
	path   string
	file   *os.File
	writer *csv.Writer
}

// StartSession creates folder if needed and opens the log for a session
// started at start.
func StartSession(folder string, start time.Time) (*SessionLogger, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("cannot create log folder: %w", err)
	}
	path := filepath.Join(folder, FileName(start))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open session log: %w", err)
	}
	l := &SessionLogger{path: path, file: f, writer: csv.NewWriter(f)}

	// Two sessions started within the same second share a file.
	info, err := f.Stat()
	fresh := err != nil || info.Size() == 0
	if err == nil && fresh {
		err = l.writeRow(Header)
	}
	if err != nil {
		f.Close()
		if fresh {
			os.Remove(path)
		}
		return nil, fmt.Errorf("cannot write session log header: %w", err)
	}
	return l, nil
}

// Path returns the file being written.
func (l *SessionLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one row for s.
func (l *SessionLogger) Append(s sensor.Sample) error {
	if l == nil || l.file == nil {
		return ErrClosed
	}
	return l.writeRow([]string{
		s.Time.Format(timeLayout),
		strconv.FormatFloat(s.ElapsedSeconds(), 'f', 3, 64),
		strconv.FormatFloat(s.Kelvin, 'f', 6, 64),
	})
}

func (l *SessionLogger) writeRow(row []string) error {
	if err := l.writer.Write(row); err != nil {
		return err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return syncFile(l.file)
}

// syncFile is swapped out by tests.
var syncFile = func(f *os.File) error { return f.Sync() }

// Close flushes and closes the file. It is safe to call more than once
// and on a nil logger.
func (l *SessionLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.writer.Flush()
	err := errors.Join(l.writer.Error(), l.file.Close())
	l.file = nil
	return err
}

// Row is one parsed line of a session log.
type Row struct {
	Time    time.Time
	Elapsed time.Duration
	Kelvin  float64
}

// LoadFile reads all rows of a session log. Malformed rows are skipped.
func LoadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == Header[0] {
			continue
		}
		if len(rec) < 3 {
			continue
		}
		t, err := time.ParseInLocation(timeLayout, rec[0], time.Local)
		if err != nil {
			continue
		}
		elapsed, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			continue
		}
		kelvin, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			continue
		}
		rows = append(rows, Row{
			Time:    t,
			Elapsed: time.Duration(elapsed * float64(time.Second)),
			Kelvin:  kelvin,
		})
	}
	return rows, nil
}

// SessionStart recovers the start instant encoded in a log file name.
func SessionStart(name string) (time.Time, error) {
	base := filepath.Base(name)
	if len(base) != len(filePrefix)+len(fileLayout)+len(".csv") ||
		base[:len(filePrefix)] != filePrefix || filepath.Ext(base) != ".csv" {
		return time.Time{}, fmt.Errorf("not a session log name: %q", base)
	}
	stamp := base[len(filePrefix) : len(base)-len(".csv")]
	return time.ParseInLocation(fileLayout, stamp, time.Local)
}

package transport

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

// port is the subset of serial.Port a query needs.
type port interface {
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// openPort is swapped out by tests.
var openPort = func(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// Serial talks to the instrument over an RS232/USB line, 8-N-1.
type Serial struct {
	cfg    SerialConfig
	logger *slog.Logger

	mu   sync.Mutex
	port port
}

// NewSerial returns an unopened serial transport.
func NewSerial(cfg SerialConfig, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSerialTimeout
	}
	return &Serial{cfg: cfg, logger: logger}
}

// Open opens the line. Opening an open transport is a no-op.
func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := openPort(s.cfg.Port, mode)
	if err != nil {
		return &IOError{Op: "open " + s.cfg.Port, Err: err}
	}
	if err := p.SetReadTimeout(s.cfg.Timeout); err != nil {
		p.Close()
		return &IOError{Op: "set read timeout", Err: err}
	}
	s.port = p
	s.logger.Debug("serial port opened", "port", s.cfg.Port, "baud", s.cfg.BaudRate)
	return nil
}

func (s *Serial) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return
	}
	if err := s.port.Close(); err != nil {
		s.logger.Warn("closing serial port", "port", s.cfg.Port, "error", err)
	}
	s.port = nil
}

func (s *Serial) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Query clears pending input, sends command+terminator and reads until
// the terminator shows up or the timeout elapses. A partial reply that
// arrived before the timeout is returned as is.
func (s *Serial) Query(command string, terminator []byte) (string, error) {
	s.mu.Lock()
	p := s.port
	s.mu.Unlock()
	if p == nil {
		return "", ErrNotOpen
	}

	term := effectiveTerminator(terminator)
	payload := asciiOnly(append([]byte(command), terminator...))

	if err := p.ResetInputBuffer(); err != nil {
		return "", &IOError{Op: "reset input", Err: err}
	}
	if _, err := p.Write(payload); err != nil {
		return "", &IOError{Op: "write", Err: err}
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	data := make([]byte, 0, 64)
	buf := make([]byte, 64)
	for !bytes.Contains(data, term) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := p.SetReadTimeout(remaining); err != nil {
			return "", &IOError{Op: "set read timeout", Err: err}
		}
		n, err := p.Read(buf)
		if err != nil {
			return "", &IOError{Op: "read", Err: err}
		}
		if n == 0 {
			// go.bug.st/serial reports a read timeout as zero bytes.
			break
		}
		data = append(data, buf[:n]...)
	}

	if len(data) == 0 {
		return "", ErrTimeout
	}
	return cleanResponse(data, term), nil
}

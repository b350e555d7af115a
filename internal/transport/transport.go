// Package transport provides the byte-level link to the instrument: an
// RS232/USB serial line or a TCP socket, both exposing the same
// request/response Query.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrNotOpen is returned by Query on a transport that is not open.
	ErrNotOpen = errors.New("transport not open")
	// ErrTimeout is returned when the instrument did not answer in time.
	ErrTimeout = errors.New("transport timeout")
)

// IOError wraps any other I/O fault of the link.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// Transport is a request/response link to the instrument. It is not safe
// for concurrent Query calls.
type Transport interface {
	Open() error
	// Close releases the link. It is safe to call on a closed transport.
	Close()
	IsOpen() bool
	Query(command string, terminator []byte) (string, error)
}

// Kind selects the transport variant.
type Kind int

const (
	KindNetwork Kind = iota
	KindSerial
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "ethernet"
	case KindSerial:
		return "serial"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the names used in settings and on the command line.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ethernet", "network", "tcp":
		return KindNetwork, nil
	case "serial", "rs232", "usb":
		return KindSerial, nil
	}
	return 0, fmt.Errorf("unknown connection type %q", s)
}

// Timeouts used when a config leaves Timeout at zero.
const (
	DefaultSerialTimeout  = 3 * time.Second
	DefaultNetworkTimeout = 5 * time.Second
)

// SerialConfig configures a serial line.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration // <= 0 means DefaultSerialTimeout
}

// NetworkConfig configures a TCP connection.
type NetworkConfig struct {
	Host    string
	Port    int
	Timeout time.Duration // <= 0 means DefaultNetworkTimeout
}

// Config is a tagged union; only the member selected by Kind is used.
type Config struct {
	Kind    Kind
	Serial  SerialConfig
	Network NetworkConfig
}

// Target returns a human readable address for status lines.
func (c Config) Target() string {
	if c.Kind == KindSerial {
		return fmt.Sprintf("%s@%d", c.Serial.Port, c.Serial.BaudRate)
	}
	return fmt.Sprintf("%s:%d", c.Network.Host, c.Network.Port)
}

// New builds an unopened transport for cfg.
func New(cfg Config, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Kind == KindSerial {
		return NewSerial(cfg.Serial, logger)
	}
	return NewNetwork(cfg.Network, logger)
}

// effectiveTerminator mirrors readline() behaviour for an empty terminator.
func effectiveTerminator(t []byte) []byte {
	if len(t) == 0 {
		return []byte{'\n'}
	}
	return t
}

// asciiOnly drops every byte outside 7-bit ASCII.
func asciiOnly(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x80 {
			out = append(out, c)
		}
	}
	return out
}

// cleanResponse cuts the reply at the first terminator and trims it.
func cleanResponse(data, terminator []byte) string {
	s := string(asciiOnly(data))
	if i := strings.Index(s, string(terminator)); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

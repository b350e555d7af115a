package transport

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// Network talks to the instrument over TCP (the SCM10 LAN option listens
// on port 2000 by default).
type Network struct {
	cfg    NetworkConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewNetwork returns an unopened TCP transport.
func NewNetwork(cfg NetworkConfig, logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultNetworkTimeout
	}
	return &Network{cfg: cfg, logger: logger}
}

func (n *Network) addr() string {
	return net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
}

// Open dials the instrument with the configured timeout.
func (n *Network) Open() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", n.addr(), n.cfg.Timeout)
	if err != nil {
		if isTimeout(err) {
			return errors.Join(ErrTimeout, err)
		}
		return &IOError{Op: "dial " + n.addr(), Err: err}
	}
	n.conn = conn
	n.logger.Debug("tcp connection opened", "addr", n.addr())
	return nil
}

func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return
	}
	if tc, ok := n.conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	if err := n.conn.Close(); err != nil {
		n.logger.Warn("closing tcp connection", "addr", n.addr(), "error", err)
	}
	n.conn = nil
}

func (n *Network) IsOpen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil
}

// Query writes command+terminator and reads until the terminator is seen
// or the peer closes the connection.
func (n *Network) Query(command string, terminator []byte) (string, error) {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return "", ErrNotOpen
	}

	term := effectiveTerminator(terminator)
	payload := asciiOnly(append([]byte(command), terminator...))

	if err := conn.SetDeadline(time.Now().Add(n.cfg.Timeout)); err != nil {
		return "", &IOError{Op: "set deadline", Err: err}
	}
	if _, err := conn.Write(payload); err != nil {
		if isTimeout(err) {
			return "", ErrTimeout
		}
		return "", &IOError{Op: "write", Err: err}
	}

	var data []byte
	buf := make([]byte, 1024)
	for {
		k, err := conn.Read(buf)
		data = append(data, buf[:k]...)
		if bytes.Contains(data, term) {
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isTimeout(err) {
				return "", ErrTimeout
			}
			return "", &IOError{Op: "read", Err: err}
		}
	}
	return cleanResponse(data, term), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

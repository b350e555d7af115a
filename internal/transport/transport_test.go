package transport

import (
	"errors"
	"testing"
	"time"

	"go.bug.st/serial/enumerator"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"ethernet", KindNetwork},
		{"TCP", KindNetwork},
		{" serial ", KindSerial},
		{"rs232", KindSerial},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseKind("gpib"); err == nil {
		t.Error("ParseKind(gpib): expected error")
	}
}

func TestNewSelectsVariant(t *testing.T) {
	if _, ok := New(Config{Kind: KindSerial}, nil).(*Serial); !ok {
		t.Error("KindSerial did not build a *Serial")
	}
	if _, ok := New(Config{Kind: KindNetwork}, nil).(*Network); !ok {
		t.Error("KindNetwork did not build a *Network")
	}
}

func TestTarget(t *testing.T) {
	c := Config{Kind: KindNetwork, Network: NetworkConfig{Host: "10.0.0.5", Port: 2000, Timeout: time.Second}}
	if c.Target() != "10.0.0.5:2000" {
		t.Errorf("Target: got %q", c.Target())
	}
	c = Config{Kind: KindSerial, Serial: SerialConfig{Port: "COM3", BaudRate: 9600}}
	if c.Target() != "COM3@9600" {
		t.Errorf("Target: got %q", c.Target())
	}
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		data, term, want string
	}{
		{"T:25.123000\r\n", "\r\n", "T:25.123000"},
		{"  7.5 \r\nstale\r\n", "\r\n", "7.5"},
		{"12;", ";", "12"},
		{"no term", "\n", "no term"},
	}
	for _, tt := range tests {
		if got := cleanResponse([]byte(tt.data), []byte(tt.term)); got != tt.want {
			t.Errorf("cleanResponse(%q) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestListPorts(t *testing.T) {
	orig := detailedPorts
	defer func() { detailedPorts = orig }()

	detailedPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R"},
			{Name: "/dev/ttyS0"},
		}, nil
	}
	ports, err := ListPorts()
	if err != nil {
		t.Fatalf("ListPorts: %v", err)
	}
	if len(ports) != 2 {
		t.Fatalf("expected 2 ports, got %d", len(ports))
	}
	if ports[0].String() != "/dev/ttyUSB0 (USB 0403:6001 FT232R)" {
		t.Errorf("ports[0]: got %q", ports[0].String())
	}
	if ports[1].String() != "/dev/ttyS0" {
		t.Errorf("ports[1]: got %q", ports[1].String())
	}

	detailedPorts = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("boom") }
	if _, err := ListPorts(); err == nil {
		t.Error("expected enumeration error")
	}
}

func TestZeroTimeoutUsesDefault(t *testing.T) {
	n := NewNetwork(NetworkConfig{Host: "10.0.0.5", Port: 2000}, discard)
	if n.cfg.Timeout != DefaultNetworkTimeout {
		t.Errorf("network timeout: got %v, want %v", n.cfg.Timeout, DefaultNetworkTimeout)
	}
	s := NewSerial(SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 9600, Timeout: -time.Second}, discard)
	if s.cfg.Timeout != DefaultSerialTimeout {
		t.Errorf("serial timeout: got %v, want %v", s.cfg.Timeout, DefaultSerialTimeout)
	}
	tr := New(Config{Kind: KindNetwork}, discard).(*Network)
	if tr.cfg.Timeout != DefaultNetworkTimeout {
		t.Errorf("New: got %v", tr.cfg.Timeout)
	}
}

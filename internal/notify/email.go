// Package notify implements the alarm sinks: e-mail over SMTP and the
// terminal bell.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// DefaultSubject is used when EmailConfig.Subject is empty.
const DefaultSubject = "SCM10 Alarm"

const sendTimeout = 15 * time.Second

var (
	ErrNoHost       = errors.New("notify: SMTP host is required")
	ErrNoRecipients = errors.New("notify: recipient address is required")
)

// EmailConfig describes the SMTP relay and the message envelope.
type EmailConfig struct {
	Host     string
	Port     int
	UseTLS   bool // STARTTLS after the greeting
	Username string
	Password string
	From     string // defaults to Username
	To       []string
	Subject  string
}

// Validate reports the first missing setting.
func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrNoHost
	}
	if len(c.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}

func (c EmailConfig) sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// subject keeps the configured subject on one header line.
func (c EmailConfig) subject() string {
	s := strings.Join(strings.FieldsFunc(c.Subject, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
	if strings.TrimSpace(s) == "" {
		return DefaultSubject
	}
	return s
}

// EmailSender sends alarm notifications through an SMTP relay. It
// dials a new connection for every message.
type EmailSender struct {
	cfg  EmailConfig
	now  func() time.Time // Date header
	dial mail.DialContextFunc
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	var d net.Dialer
	return &EmailSender{cfg: cfg, now: time.Now, dial: d.DialContext}
}

func (s *EmailSender) newMsg(body string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.sender()); err != nil {
		return nil, fmt.Errorf("notify: from address: %w", err)
	}
	if err := m.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("notify: recipient address: %w", err)
	}
	m.Subject(s.cfg.subject())
	m.SetDateWithValue(s.now())
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}

func (s *EmailSender) client() (*mail.Client, error) {
	tls := mail.NoTLS
	if s.cfg.UseTLS {
		tls = mail.TLSMandatory
	}
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(tls),
		mail.WithTimeout(sendTimeout),
		mail.WithDialContextFunc(s.dial),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

// SendAlarmNotification delivers body as a plain text message.
func (s *EmailSender) SendAlarmNotification(body string) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	m, err := s.newMsg(body)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("notify: send via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	return nil
}

// ParseRecipients splits a recipient list separated by semicolons,
// commas or newlines, dropping empty entries.
func ParseRecipients(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ';' || r == ',' || r == '\n' || r == '\r'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

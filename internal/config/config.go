// Package config reads the scm10mon settings from command-line flags.
// Every flag takes its default from an SCM10_* environment variable
// when one is set.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/luki/scm10/internal/alarm"
	"github.com/luki/scm10/internal/notify"
	"github.com/luki/scm10/internal/protocol"
	"github.com/luki/scm10/internal/session"
	"github.com/luki/scm10/internal/telemetry"
	"github.com/luki/scm10/internal/transport"
)

const (
	DefaultNetworkPort    = 2000
	DefaultNetworkTimeout = transport.DefaultNetworkTimeout
	DefaultBaudRate       = 9600
	DefaultSerialTimeout  = transport.DefaultSerialTimeout

	MinPeriod = 100 * time.Millisecond
	MaxPeriod = 60 * time.Second
)

type Config struct {
	Transport     string
	Host          string
	Port          int
	SerialPort    string
	BaudRate      int
	Timeout       time.Duration // 0 picks the per-transport default
	Terminator    string        // escaped, e.g. `\r\n`
	IDNQuery      string
	TempQuery     string
	Period        time.Duration
	MaxPoints     int
	LogFolder     string
	AlarmEnabled  bool
	AlarmLow      string // empty disables the side
	AlarmHigh     string
	Beep          bool
	Email         bool
	EmailInterval int // minutes
	SMTPHost      string
	SMTPPort      int
	SMTPTLS       bool
	SMTPUser      string
	SMTPPassword  string // environment only
	SMTPFrom      string
	SMTPTo        string
	SMTPSubject   string
	MQTTBroker    string
	MQTTClientID  string
	MQTTTopic     string
	RedisAddr     string
	RedisPassword string // environment only
	RedisDB       int
	LogLevel      string
	LogFile       string
	ListPorts     bool
	Identify      bool
	Headless      bool
}

// Load parses args (without the program name).
func Load(args []string) (Config, error) {
	var c Config
	fs := flag.NewFlagSet("scm10mon", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.Transport, "transport", getEnv("SCM10_TRANSPORT", "ethernet"), "link to the instrument: ethernet or serial")
	fs.StringVar(&c.Host, "host", getEnv("SCM10_HOST", ""), "instrument host name or IP address")
	fs.IntVar(&c.Port, "port", getEnvInt("SCM10_PORT", DefaultNetworkPort), "instrument TCP port")
	fs.StringVar(&c.SerialPort, "serial-port", getEnv("SCM10_SERIAL_PORT", ""), "serial device, e.g. /dev/ttyUSB0 or COM3")
	fs.IntVar(&c.BaudRate, "baud", getEnvInt("SCM10_BAUD", DefaultBaudRate), "serial baud rate")
	fs.DurationVar(&c.Timeout, "timeout", getEnvDuration("SCM10_TIMEOUT", 0), "query timeout (default 5s ethernet, 3s serial)")
	fs.StringVar(&c.Terminator, "terminator", getEnv("SCM10_TERMINATOR", protocol.DefaultTerminator), `line terminator, escaped (\r \n \t \\)`)
	fs.StringVar(&c.IDNQuery, "idn-query", getEnv("SCM10_IDN_QUERY", protocol.DefaultIDNQuery), "identification query")
	fs.StringVar(&c.TempQuery, "temp-query", getEnv("SCM10_TEMP_QUERY", protocol.DefaultTempQuery), "temperature query")
	fs.DurationVar(&c.Period, "period", getEnvDuration("SCM10_PERIOD", time.Second), "poll period")
	fs.IntVar(&c.MaxPoints, "max-points", getEnvInt("SCM10_MAX_POINTS", 0), "samples kept in memory, 0 keeps all")
	fs.StringVar(&c.LogFolder, "log-folder", getEnv("SCM10_LOG_FOLDER", session.DefaultLogFolder), "folder for session CSV logs")
	fs.BoolVar(&c.AlarmEnabled, "alarm", getEnvBool("SCM10_ALARM", false), "enable threshold alarms")
	fs.StringVar(&c.AlarmLow, "alarm-low", getEnv("SCM10_ALARM_LOW", ""), "low threshold in K, empty disables")
	fs.StringVar(&c.AlarmHigh, "alarm-high", getEnv("SCM10_ALARM_HIGH", ""), "high threshold in K, empty disables")
	fs.BoolVar(&c.Beep, "beep", getEnvBool("SCM10_BEEP", true), "ring the terminal bell while in alarm")
	fs.BoolVar(&c.Email, "email", getEnvBool("SCM10_EMAIL", false), "send alarm e-mails")
	fs.IntVar(&c.EmailInterval, "email-interval", getEnvInt("SCM10_EMAIL_INTERVAL", 60), "minimum minutes between alarm e-mails")
	fs.StringVar(&c.SMTPHost, "smtp-host", getEnv("SCM10_SMTP_HOST", ""), "SMTP relay host")
	fs.IntVar(&c.SMTPPort, "smtp-port", getEnvInt("SCM10_SMTP_PORT", 587), "SMTP relay port")
	fs.BoolVar(&c.SMTPTLS, "smtp-tls", getEnvBool("SCM10_SMTP_TLS", true), "use STARTTLS")
	fs.StringVar(&c.SMTPUser, "smtp-user", getEnv("SCM10_SMTP_USER", ""), "SMTP user name (password from SCM10_SMTP_PASSWORD)")
	fs.StringVar(&c.SMTPFrom, "smtp-from", getEnv("SCM10_SMTP_FROM", ""), "sender address, defaults to the user name")
	fs.StringVar(&c.SMTPTo, "smtp-to", getEnv("SCM10_SMTP_TO", ""), "recipients separated by ; or ,")
	fs.StringVar(&c.SMTPSubject, "smtp-subject", getEnv("SCM10_SMTP_SUBJECT", notify.DefaultSubject), "alarm e-mail subject")
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", getEnv("SCM10_MQTT_BROKER", ""), "MQTT broker URL, empty disables")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", getEnv("SCM10_MQTT_CLIENT_ID", "scm10mon"), "MQTT client id")
	fs.StringVar(&c.MQTTTopic, "mqtt-topic", getEnv("SCM10_MQTT_TOPIC", "scm10"), "MQTT topic prefix")
	fs.StringVar(&c.RedisAddr, "redis-addr", getEnv("SCM10_REDIS_ADDR", ""), "Redis address for the last reading, empty disables")
	fs.IntVar(&c.RedisDB, "redis-db", getEnvInt("SCM10_REDIS_DB", 0), "Redis database")
	fs.StringVar(&c.LogLevel, "log-level", getEnv("SCM10_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&c.LogFile, "log-file", getEnv("SCM10_LOG_FILE", "scm10mon.log"), "diagnostic log file in TUI mode")
	fs.BoolVar(&c.ListPorts, "list-ports", false, "list serial ports and exit")
	fs.BoolVar(&c.Identify, "identify", false, "send the identification query and exit")
	fs.BoolVar(&c.Headless, "headless", getEnvBool("SCM10_HEADLESS", false), "log events as JSON instead of the terminal view")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return Config{}, err
	}
	c.SMTPPassword = os.Getenv("SCM10_SMTP_PASSWORD")
	c.RedisPassword = os.Getenv("SCM10_REDIS_PASSWORD")
	return c, nil
}

// Validate checks the settings needed to poll; port listing needs none.
func (c Config) Validate() error {
	if c.ListPorts {
		return nil
	}
	var errs []error
	tc, err := c.TransportConfig()
	if err != nil {
		errs = append(errs, err)
	} else {
		switch tc.Kind {
		case transport.KindNetwork:
			if c.Host == "" {
				errs = append(errs, errors.New("-host is required for ethernet"))
			}
			if c.Port < 1 || c.Port > 65535 {
				errs = append(errs, fmt.Errorf("-port %d out of range", c.Port))
			}
		case transport.KindSerial:
			if c.SerialPort == "" {
				errs = append(errs, errors.New("-serial-port is required for serial"))
			}
			if c.BaudRate <= 0 {
				errs = append(errs, fmt.Errorf("-baud %d must be positive", c.BaudRate))
			}
		}
	}
	if c.Period < MinPeriod || c.Period > MaxPeriod {
		errs = append(errs, fmt.Errorf("-period %v outside %v..%v", c.Period, MinPeriod, MaxPeriod))
	}
	if c.MaxPoints < 0 {
		errs = append(errs, fmt.Errorf("-max-points %d must not be negative", c.MaxPoints))
	}
	if _, err := c.AlarmConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.Email {
		if err := c.EmailConfig().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) TransportConfig() (transport.Config, error) {
	kind, err := transport.ParseKind(c.Transport)
	if err != nil {
		return transport.Config{}, err
	}
	tc := transport.Config{Kind: kind}
	switch kind {
	case transport.KindSerial:
		tc.Serial = transport.SerialConfig{Port: c.SerialPort, BaudRate: c.BaudRate, Timeout: orDefault(c.Timeout, DefaultSerialTimeout)}
	default:
		tc.Network = transport.NetworkConfig{Host: c.Host, Port: c.Port, Timeout: orDefault(c.Timeout, DefaultNetworkTimeout)}
	}
	return tc, nil
}

func (c Config) ProtocolConfig() protocol.Config {
	return protocol.New(c.Terminator, c.IDNQuery, c.TempQuery)
}

func (c Config) AlarmConfig() (alarm.Config, error) {
	ac := alarm.Config{
		Enabled:                 c.AlarmEnabled,
		BeepEnabled:             c.Beep,
		EmailEnabled:            c.Email,
		EmailMinIntervalMinutes: c.EmailInterval,
	}
	var err error
	if ac.LowEnabled, ac.Low, err = threshold("alarm-low", c.AlarmLow); err != nil {
		return alarm.Config{}, err
	}
	if ac.HighEnabled, ac.High, err = threshold("alarm-high", c.AlarmHigh); err != nil {
		return alarm.Config{}, err
	}
	return ac, nil
}

func threshold(name, s string) (bool, float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, 0, fmt.Errorf("-%s %q is not a number", name, s)
	}
	return true, v, nil
}

func (c Config) EmailConfig() notify.EmailConfig {
	return notify.EmailConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		UseTLS:   c.SMTPTLS,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
		To:       notify.ParseRecipients(c.SMTPTo),
		Subject:  c.SMTPSubject,
	}
}

func (c Config) MQTTConfig() telemetry.MQTTConfig {
	return telemetry.MQTTConfig{Broker: c.MQTTBroker, ClientID: c.MQTTClientID, Topic: c.MQTTTopic}
}

func (c Config) RedisConfig() telemetry.RedisConfig {
	return telemetry.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("-log-level: %w", err)
	}
	return l, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

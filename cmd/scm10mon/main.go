// Command scm10mon polls an SCM10 temperature controller over Ethernet or
// RS-232, logs every reading to a per-session CSV file and raises
// threshold alarms. It runs as a terminal view or headless with JSON logs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/scm10/internal/config"
	"github.com/luki/scm10/internal/monitor"
	"github.com/luki/scm10/internal/notify"
	"github.com/luki/scm10/internal/sensor"
	"github.com/luki/scm10/internal/session"
	"github.com/luki/scm10/internal/telemetry"
	"github.com/luki/scm10/internal/transport"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v (see -h)\n", err)
		os.Exit(2)
	}

	if cfg.ListPorts {
		listPorts()
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(2)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	tc, _ := cfg.TransportConfig()
	pc := cfg.ProtocolConfig()
	ac, _ := cfg.AlarmConfig()

	opts := session.Options{Logger: logger, MaxPoints: cfg.MaxPoints}
	if cfg.Email {
		opts.Notifier = notify.NewEmailSender(cfg.EmailConfig())
	}
	if cfg.Beep {
		opts.Beeper = notify.Bell{}
	}
	s := session.New(opts)
	s.SetAlarmConfig(ac)

	if cfg.Identify {
		idn, err := s.Identify(tc, pc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Identify %s: %v\n", tc.Target(), err)
			os.Exit(1)
		}
		fmt.Println(sensor.ParseIdentity(idn))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopForwarders := startForwarders(ctx, cfg, s, logger)
	defer stopForwarders()

	params := session.Params{
		Transport: tc,
		Protocol:  pc,
		Period:    cfg.Period,
		LogFolder: cfg.LogFolder,
	}
	if cfg.Headless {
		err = runHeadless(ctx, s, params, logger)
	} else {
		err = runMonitor(ctx, s, params, tc.Target())
	}
	if err != nil {
		logger.Error("scm10mon failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stopForwarders()
		closeLog()
		os.Exit(1)
	}
}

// newLogger logs JSON to stderr in headless mode and to a file otherwise,
// where stderr output would corrupt the terminal view.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level, _ := cfg.Level()
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Headless || cfg.Identify {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts)), func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, hopts)), func() { f.Close() }, nil
}

func listPorts() {
	ports, err := transport.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

// startForwarders hooks the optional MQTT and Redis sinks to the session
// events. The returned func tears them down and may be called twice.
func startForwarders(ctx context.Context, cfg config.Config, s *session.Session, logger *slog.Logger) func() {
	var cleanups []func()

	if cfg.MQTTBroker != "" {
		pub := telemetry.NewMQTTPublisher(cfg.MQTTConfig(), logger)
		if err := pub.Connect(); err != nil {
			logger.Error("mqtt disabled", "broker", cfg.MQTTBroker, "error", err)
		} else {
			events, unsubscribe := s.Subscribe(256)
			go pub.Run(ctx, events)
			cleanups = append(cleanups, unsubscribe, pub.Close)
			logger.Info("mqtt forwarding enabled", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)
		}
	}

	if cfg.RedisAddr != "" {
		cache, err := telemetry.NewRedisCache(ctx, cfg.RedisConfig(), logger)
		if err != nil {
			logger.Error("redis disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			events, unsubscribe := s.Subscribe(16)
			go cache.Run(ctx, events)
			cleanups = append(cleanups, unsubscribe, func() { cache.Close() })
			logger.Info("redis cache enabled", "addr", cfg.RedisAddr, "key", telemetry.LastKey)
		}
	}

	done := false
	return func() {
		if done {
			return
		}
		done = true
		for _, f := range cleanups {
			f()
		}
	}
}

func runHeadless(ctx context.Context, s *session.Session, params session.Params, logger *slog.Logger) error {
	events, unsubscribe := s.Subscribe(64)
	defer unsubscribe()

	if err := s.Start(params); err != nil {
		return err
	}
	defer s.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case ev := <-events:
			logEvent(logger, ev)
		}
	}
}

func logEvent(logger *slog.Logger, ev session.Event) {
	switch ev.Kind {
	case session.EventSample:
		attrs := []any{"kelvin", ev.Sample.Kelvin, "elapsed_s", ev.Sample.ElapsedSeconds()}
		if ev.Alarm.InAlarm {
			attrs = append(attrs, "alarm", ev.Alarm.Side())
		}
		logger.Info("sample", attrs...)
	case session.EventPollFailed, session.EventLogWriteFailed, session.EventNotificationFailed:
		logger.Warn(ev.Kind.String(), "error", ev.Err)
	case session.EventStarted:
		logger.Info("polling", "log", ev.LogPath)
	}
}

func runMonitor(ctx context.Context, s *session.Session, params session.Params, target string) error {
	events, unsubscribe := s.Subscribe(64)
	defer unsubscribe()
	defer s.Stop()

	p := tea.NewProgram(
		monitor.New(s, events, params, target, true),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

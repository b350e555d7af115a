package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/luki/scm10/internal/session"
)

const publishTimeout = 5 * time.Second

var ErrPublishTimeout = errors.New("telemetry: mqtt publish timed out")

type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string // prefix; readings go to <Topic>/temperature
}

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTPublisher struct {
	client mqttClient
	topic  string
	logger *slog.Logger
}

func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	return newMQTTPublisher(mqtt.NewClient(opts), cfg.Topic, logger)
}

func newMQTTPublisher(client mqttClient, topic string, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if topic == "" {
		topic = "scm10"
	}
	return &MQTTPublisher{client: client, topic: topic, logger: logger}
}

func (p *MQTTPublisher) Connect() error {
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: mqtt connect: %w", token.Error())
	}
	return nil
}

func (p *MQTTPublisher) Close() { p.client.Disconnect(250) }

// Publish sends one event: samples as a Reading on <topic>/temperature,
// everything else as a Status on <topic>/status.
func (p *MQTTPublisher) Publish(ev session.Event) error {
	topic := p.topic + "/status"
	var v any = statusOf(ev)
	if ev.Kind == session.EventSample {
		topic = p.topic + "/temperature"
		v = readingOf(ev)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Run publishes events until ctx is done or events is closed.
func (p *MQTTPublisher) Run(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				p.logger.Warn("mqtt publish failed", "event", ev.Kind.String(), "error", err)
				continue
			}
			p.logger.Debug("mqtt event sent", "event", ev.Kind.String())
		}
	}
}

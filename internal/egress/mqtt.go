package egress

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/record"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTSink publishes records as JSON to a broker topic at QoS 0. The paho
// client reconnects on its own; emits during an outage fail and are
// counted by the fanout.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

// NewMQTTSink connects to the broker. A broker that is down at startup is
// an error here; the caller decides whether to run without the sink.
func NewMQTTSink(cfg config.MQTTEgressConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("egress: mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("egress: mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return &MQTTSink{client: client, topic: cfg.Topic}, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Emit(rec *record.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("egress: mqtt: marshal: %w", err)
	}
	token := s.client.Publish(s.topic, 0, false, raw)
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("egress: mqtt: publish to %s timed out", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("egress: mqtt: publish to %s: %w", s.topic, err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

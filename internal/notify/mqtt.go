package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	Timeout  time.Duration
}

// publisher is the subset of the paho client used for events.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes every event as JSON to <topic>/<kind> with QoS 1.
type MQTT struct {
	client  publisher
	topic   string
	timeout time.Duration
}

// DialMQTT connects to the broker.
func DialMQTT(cfg MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(timeoutOrDefault(cfg.Timeout))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return newMQTT(client, cfg.Topic, cfg.Timeout), nil
}

func newMQTT(client publisher, topic string, timeout time.Duration) *MQTT {
	return &MQTT{
		client:  client,
		topic:   strings.TrimRight(topic, "/"),
		timeout: timeoutOrDefault(timeout),
	}
}

// TopicFor returns the topic an event kind is published on.
func (m *MQTT) TopicFor(kind Kind) string {
	return m.topic + "/" + string(kind)
}

func (m *MQTT) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode mqtt event: %w", err)
	}

	topic := m.TopicFor(event.Kind)
	token := m.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-time.After(m.timeout):
		return fmt.Errorf("mqtt publish %s: timed out after %s", topic, m.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing 250ms for in-flight work.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 5 * time.Second
	}
	return timeout
}

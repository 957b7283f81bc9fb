// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures a broker connection.
type MQTTConfig struct {
	// BrokerURL is the broker address, e.g. "tcp://192.168.50.100:1883".
	BrokerURL string
	// ClientID identifies this connection to the broker. Required:
	// two connections sharing an id evict each other.
	ClientID string
	// Username and Password are optional broker credentials.
	Username string
	Password string
	// ConnectTimeout bounds the initial connect. Zero means 10s.
	ConnectTimeout time.Duration
	// Logger receives connection lifecycle events. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// MQTT is the paho-backed Conn. Reconnects are automatic, and every
// subscription made through this type is recorded and re-issued from
// the connect handler: the connection is clean-session, so the broker
// drops its side of the subscriptions when the network does, and a
// reconnected client that did not resubscribe would stay deaf.
// Messages published while disconnected return an error rather than
// queueing silently.
type MQTT struct {
	client paho.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs []mqttSubscription
}

type mqttSubscription struct {
	filter  string
	qos     byte
	handler Handler
}

// DialMQTT connects to the broker and returns the live connection.
func DialMQTT(ctx context.Context, config MQTTConfig) (*MQTT, error) {
	if config.BrokerURL == "" {
		return nil, fmt.Errorf("bus: BrokerURL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("bus: ClientID is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	m := &MQTT{logger: logger}

	options := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(connectTimeout)
	if config.Username != "" {
		options.SetUsername(config.Username)
		options.SetPassword(config.Password)
	}
	options.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("bus connection lost", "broker", config.BrokerURL, "error", err)
	})
	options.SetOnConnectHandler(func(paho.Client) {
		logger.Info("bus connected", "broker", config.BrokerURL, "client_id", config.ClientID)
		m.resume()
	})

	m.client = paho.NewClient(options)
	if err := m.wait(ctx, m.client.Connect()); err != nil {
		return nil, fmt.Errorf("bus: connecting to %s: %w", config.BrokerURL, err)
	}
	return m, nil
}

// Publish implements Conn.
func (m *MQTT) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if err := m.wait(ctx, m.client.Publish(topic, qos, retain, payload)); err != nil {
		return fmt.Errorf("bus: publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Conn. The subscription is recorded so resume
// can re-issue it after a reconnect.
func (m *MQTT) Subscribe(ctx context.Context, filter string, qos byte, handler Handler) error {
	sub := mqttSubscription{filter: filter, qos: qos, handler: handler}
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	if err := m.wait(ctx, m.client.Subscribe(filter, qos, pahoHandler(handler))); err != nil {
		m.forget(sub)
		return fmt.Errorf("bus: subscribing to %s: %w", filter, err)
	}
	return nil
}

// resume re-issues every recorded subscription. Runs on each connect;
// on the first the list is empty, on later ones it restores what a
// clean-session broker dropped with the old connection.
func (m *MQTT) resume() {
	m.mu.Lock()
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		token := m.client.Subscribe(sub.filter, sub.qos, pahoHandler(sub.handler))
		token.Wait()
		if err := token.Error(); err != nil {
			m.logger.Warn("resubscribe failed", "filter", sub.filter, "error", err)
		}
	}
}

// forget drops the most recent record of a subscription that was never
// accepted by the broker.
func (m *MQTT) forget(sub mqttSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.subs) - 1; i >= 0; i-- {
		if m.subs[i].filter == sub.filter && m.subs[i].qos == sub.qos {
			m.subs = slices.Delete(m.subs, i, i+1)
			return
		}
	}
}

// pahoHandler adapts a Handler to paho's callback shape.
func pahoHandler(handler Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		handler(Message{
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			Retained: msg.Retained(),
		})
	}
}

// Close disconnects, allowing 250ms for in-flight messages to drain.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

// wait blocks on a paho token, bounded by ctx.
func (m *MQTT) wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

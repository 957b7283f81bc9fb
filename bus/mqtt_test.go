// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// stubToken is a paho.Token that completes immediately.
type stubToken struct{ err error }

func (t stubToken) Wait() bool                     { return true }
func (t stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Error() error                   { return t.err }

func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type subscribeCall struct {
	filter   string
	qos      byte
	callback paho.MessageHandler
}

// stubPahoClient records Subscribe calls so tests can assert what
// would be re-sent to a broker.
type stubPahoClient struct {
	mu           sync.Mutex
	subscribes   []subscribeCall
	subscribeErr error
}

func (c *stubPahoClient) Subscribe(filter string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return stubToken{err: c.subscribeErr}
	}
	c.subscribes = append(c.subscribes, subscribeCall{filter: filter, qos: qos, callback: callback})
	return stubToken{}
}

func (c *stubPahoClient) calls() []subscribeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]subscribeCall(nil), c.subscribes...)
}

func (c *stubPahoClient) IsConnected() bool      { return true }
func (c *stubPahoClient) IsConnectionOpen() bool { return true }
func (c *stubPahoClient) Connect() paho.Token    { return stubToken{} }
func (c *stubPahoClient) Disconnect(uint)        {}

func (c *stubPahoClient) Publish(string, byte, bool, interface{}) paho.Token { return stubToken{} }

func (c *stubPahoClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return stubToken{}
}

func (c *stubPahoClient) Unsubscribe(...string) paho.Token     { return stubToken{} }
func (c *stubPahoClient) AddRoute(string, paho.MessageHandler) {}

func (c *stubPahoClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

// stubPahoMessage is a minimal inbound paho.Message.
type stubPahoMessage struct {
	topic   string
	payload []byte
}

func (m stubPahoMessage) Duplicate() bool   { return false }
func (m stubPahoMessage) Qos() byte         { return 0 }
func (m stubPahoMessage) Retained() bool    { return false }
func (m stubPahoMessage) Topic() string     { return m.topic }
func (m stubPahoMessage) MessageID() uint16 { return 0 }
func (m stubPahoMessage) Payload() []byte   { return m.payload }
func (m stubPahoMessage) Ack()              {}

func testMQTT(client paho.Client) *MQTT {
	return &MQTT{client: client, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestMQTTResubscribesOnReconnect(t *testing.T) {
	stub := &stubPahoClient{}
	m := testMQTT(stub)
	ctx := context.Background()

	var got []Message
	if err := m.Subscribe(ctx, "base_01/order_request/response/#", QoSOrder, func(msg Message) {
		got = append(got, msg)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(stub.calls()) != 1 {
		t.Fatalf("initial subscribes = %d, want 1", len(stub.calls()))
	}

	// The connect handler runs resume on every (re)connection; after a
	// connection loss the broker has dropped its side, so the same
	// filter and qos must go out again.
	m.resume()

	calls := stub.calls()
	if len(calls) != 2 {
		t.Fatalf("subscribes after reconnect = %d, want 2", len(calls))
	}
	if calls[1].filter != calls[0].filter || calls[1].qos != calls[0].qos {
		t.Errorf("resubscribe sent (%q, %d), want (%q, %d)",
			calls[1].filter, calls[1].qos, calls[0].filter, calls[0].qos)
	}

	// The re-issued subscription still routes to the original handler.
	calls[1].callback(nil, stubPahoMessage{
		topic:   "base_01/order_request/response/ord-1",
		payload: []byte(`{}`),
	})
	if len(got) != 1 || got[0].Topic != "base_01/order_request/response/ord-1" {
		t.Errorf("delivered after resubscribe = %+v", got)
	}
}

func TestMQTTResumeCoversEverySubscription(t *testing.T) {
	stub := &stubPahoClient{}
	m := testMQTT(stub)
	ctx := context.Background()

	filters := []string{"inventory/boxes", "master/state", "base_01/order_cancel/ack/#"}
	for _, filter := range filters {
		if err := m.Subscribe(ctx, filter, QoSFeed, func(Message) {}); err != nil {
			t.Fatalf("Subscribe(%q): %v", filter, err)
		}
	}

	m.resume()

	calls := stub.calls()
	if len(calls) != 2*len(filters) {
		t.Fatalf("subscribes = %d, want %d", len(calls), 2*len(filters))
	}
	for i, filter := range filters {
		if calls[len(filters)+i].filter != filter {
			t.Errorf("resume subscribe %d = %q, want %q", i, calls[len(filters)+i].filter, filter)
		}
	}
}

func TestMQTTFailedSubscribeNotResumed(t *testing.T) {
	stub := &stubPahoClient{subscribeErr: errors.New("broker refused")}
	m := testMQTT(stub)

	if err := m.Subscribe(context.Background(), "inventory/boxes", QoSFeed, func(Message) {}); err == nil {
		t.Fatal("Subscribe did not report the broker error")
	}

	stub.mu.Lock()
	stub.subscribeErr = nil
	stub.mu.Unlock()

	m.resume()
	if got := len(stub.calls()); got != 0 {
		t.Errorf("resume re-issued %d rejected subscriptions, want 0", got)
	}
}

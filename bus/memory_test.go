// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"testing"
)

func TestMatchFilter(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b", false},
		{"a/b", "a/b/c", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d", false},
		{"+/b/c", "a/b/c", true},
		{"a/#", "a/b/c", true},
		{"a/#", "a", true},
		{"#", "anything/at/all", true},
		{"base_01/+/transport/response", "base_01/uarm_01/transport/response", true},
		{"base_01/+/transport/response", "base_01/uarm_01/other/response", false},
		{"base_01/order_request/response/#", "base_01/order_request/response/abc", true},
		{"base_01/order_request/response/#", "base_01/order_request/response", true},
	}
	for _, tc := range cases {
		if got := MatchFilter(tc.filter, tc.topic); got != tc.want {
			t.Errorf("MatchFilter(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got []Message
	if err := m.Subscribe(ctx, "orders/#", QoSOrder, func(msg Message) {
		got = append(got, msg)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := m.Publish(ctx, "orders/result", QoSOrder, false, []byte("one")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	m.Publish(ctx, "unrelated/topic", QoSFeed, false, []byte("two"))

	if len(got) != 1 || string(got[0].Payload) != "one" {
		t.Fatalf("delivered = %+v, want single matching message", got)
	}
}

func TestMemoryRetainedReplay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Publish(ctx, "inventory/boxes", QoSFeed, true, []byte("retained"))

	var got []Message
	m.Subscribe(ctx, "inventory/boxes", QoSFeed, func(msg Message) {
		got = append(got, msg)
	})

	if len(got) != 1 || !got[0].Retained || string(got[0].Payload) != "retained" {
		t.Fatalf("retained replay = %+v", got)
	}
}

func TestMemoryPublishFromHandler(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var replies []string
	m.Subscribe(ctx, "request", QoSOrder, func(msg Message) {
		m.Publish(ctx, "response", QoSOrder, false, append([]byte("re: "), msg.Payload...))
	})
	m.Subscribe(ctx, "response", QoSOrder, func(msg Message) {
		replies = append(replies, string(msg.Payload))
	})

	m.Publish(ctx, "request", QoSOrder, false, []byte("hello"))

	if len(replies) != 1 || replies[0] != "re: hello" {
		t.Fatalf("replies = %v", replies)
	}
}

func TestMemoryClose(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	delivered := 0
	m.Subscribe(ctx, "#", QoSFeed, func(Message) { delivered++ })
	m.Close()
	m.Publish(ctx, "topic", QoSFeed, false, []byte("x"))
	if delivered != 0 {
		t.Error("message delivered after Close")
	}
}

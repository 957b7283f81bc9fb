// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/warecell-foundation/warecell/wire"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func boxEnvelope(id int, color string, receivedAt time.Time) wire.Envelope {
	return wire.Envelope{
		Topic:      wire.TopicBoxes,
		Kind:       wire.KindBoxDetection,
		Payload:    wire.Box{ID: id, Color: color, Type: "small"},
		ReceivedAt: receivedAt,
	}
}

func TestPutLastWriteWins(t *testing.T) {
	s := New()

	// Receipt times 100 then 90: the out-of-order late write must be
	// rejected and the newer envelope retained.
	newer := boxEnvelope(7, "red", base.Add(100*time.Second))
	older := boxEnvelope(7, "green", base.Add(90*time.Second))

	if !s.Put(Boxes, "7", newer) {
		t.Fatal("first write rejected")
	}
	if s.Put(Boxes, "7", older) {
		t.Error("stale write accepted")
	}

	env, ok := s.Get(Boxes, "7")
	if !ok {
		t.Fatal("box 7 missing")
	}
	if env.Payload.(wire.Box).Color != "red" {
		t.Errorf("stored color = %q, want newer envelope retained", env.Payload.(wire.Box).Color)
	}
}

func TestPutEqualTimestampOverwrites(t *testing.T) {
	s := New()
	at := base.Add(time.Minute)
	s.Put(Boxes, "1", boxEnvelope(1, "red", at))
	if !s.Put(Boxes, "1", boxEnvelope(1, "blue", at)) {
		t.Fatal("equal-timestamp write rejected")
	}
	env, _ := s.Get(Boxes, "1")
	if env.Payload.(wire.Box).Color != "blue" {
		t.Error("equal-timestamp write did not overwrite")
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, ok := s.Get(Boxes, "99"); ok {
		t.Error("Get reported a value for an absent key")
	}
}

func TestListNumericKeyOrder(t *testing.T) {
	s := New()
	for _, id := range []int{10, 2, 1, 9} {
		s.Put(Boxes, fmt.Sprint(id), boxEnvelope(id, "red", base))
	}

	var got []int
	for _, env := range s.List(Boxes) {
		got = append(got, env.Payload.(wire.Box).ID)
	}
	want := []int{1, 2, 9, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List order = %v, want %v", got, want)
		}
	}
}

func TestListStringKeyOrder(t *testing.T) {
	s := New()
	for _, ns := range []string{"uarm_01", "container_01", "dock_03"} {
		s.Put(Modules, ns, wire.Envelope{
			Kind:       wire.KindModulePose,
			Payload:    wire.ModulePose{Namespace: ns},
			ReceivedAt: base,
		})
	}

	got := s.List(Modules)
	want := []string{"container_01", "dock_03", "uarm_01"}
	for i, env := range got {
		if env.Payload.(wire.ModulePose).Namespace != want[i] {
			t.Fatalf("List order wrong at %d: got %q, want %q",
				i, env.Payload.(wire.ModulePose).Namespace, want[i])
		}
	}
}

func orderRecord(id string, st OrderState, receivedAt time.Time) OrderRecord {
	return OrderRecord{
		CorrelationID: id,
		State:         st,
		Envelope: wire.Envelope{
			Kind:       wire.KindOrderResult,
			Payload:    wire.OrderResult{Header: wire.Header{CorrelationID: id}, Success: st == OrderCompleted},
			ReceivedAt: receivedAt,
		},
		CreatedAt: receivedAt,
	}
}

func TestPutOrderCancelledIsFrozen(t *testing.T) {
	s := New()
	s.PutOrder(orderRecord("ord-1", OrderCancelled, base))

	if s.PutOrder(orderRecord("ord-1", OrderCompleted, base.Add(time.Second))) {
		t.Error("straggling success overwrote a cancelled order")
	}

	record, _ := s.Order("ord-1")
	if record.State != OrderCancelled {
		t.Errorf("state = %q, want cancelled preserved", record.State)
	}
}

func TestOrdersNewestFirst(t *testing.T) {
	s := New()
	s.PutOrder(orderRecord("ord-a", OrderCompleted, base.Add(time.Second)))
	s.PutOrder(orderRecord("ord-b", OrderFailed, base.Add(3*time.Second)))
	s.PutOrder(orderRecord("ord-c", OrderCompleted, base.Add(2*time.Second)))

	got := s.Orders()
	want := []string{"ord-b", "ord-c", "ord-a"}
	for i := range want {
		if got[i].CorrelationID != want[i] {
			t.Fatalf("Orders()[%d] = %s, want %s", i, got[i].CorrelationID, want[i])
		}
	}
}

func TestLastOrderSlot(t *testing.T) {
	s := New()
	if _, ok := s.LastOrder(); ok {
		t.Fatal("empty store reported a last order")
	}

	s.SetLastOrder(orderRecord("ord-1", OrderCompleted, base))
	s.SetLastOrder(orderRecord("ord-2", OrderFailed, base.Add(time.Second)))

	record, ok := s.LastOrder()
	if !ok || record.CorrelationID != "ord-2" {
		t.Errorf("LastOrder = %+v, want ord-2", record)
	}
}

func TestConcurrentPuts(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprint(i % 10)
				s.Put(Boxes, key, boxEnvelope(i%10, "red", base.Add(time.Duration(i)*time.Millisecond)))
				s.Get(Boxes, key)
				s.List(Boxes)
			}
		}(worker)
	}
	wg.Wait()

	if got := len(s.List(Boxes)); got != 10 {
		t.Errorf("after concurrent writes: %d keys, want 10", got)
	}
}

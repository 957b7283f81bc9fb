// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeNowFrozen(t *testing.T) {
	f := Fake(epoch)
	if got := f.Now(); !got.Equal(epoch) {
		t.Fatalf("Now = %v, want %v", got, epoch)
	}
	f.Advance(3 * time.Second)
	if got := f.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Fatalf("Now after Advance = %v, want %v", got, epoch.Add(3*time.Second))
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	f := Fake(epoch)
	ch := f.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	f.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	f.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(epoch.Add(5 * time.Second)) {
			t.Errorf("fire time = %v, want %v", fired, epoch.Add(5*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	f := Fake(epoch)
	select {
	case <-f.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	f := Fake(epoch)
	ticker := f.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		f.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d not delivered", i+1)
		}
	}

	ticker.Stop()
	f.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("tick delivered after Stop")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	f := Fake(epoch)
	done := make(chan struct{})
	go func() {
		f.Sleep(10 * time.Second)
		close(done)
	}()

	f.WaitForTimers(1)
	f.Advance(10 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep goroutine did not wake after Advance")
	}
	if f.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", f.PendingCount())
	}
}

func TestFakeAdvanceFiresAllExpired(t *testing.T) {
	f := Fake(epoch)
	late := f.After(10 * time.Second)
	early := f.After(2 * time.Second)

	f.Advance(10 * time.Second)

	select {
	case <-early:
	default:
		t.Fatal("early waiter did not fire")
	}
	select {
	case <-late:
	default:
		t.Fatal("late waiter did not fire")
	}
}

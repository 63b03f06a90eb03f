// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowStandsStill(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, start.Add(90*time.Second))
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ch := c.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire after Advance past deadline")
	}
}

func TestFakeAfterZeroFiresImmediately(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	done := make(chan struct{})
	go func() {
		c.Sleep(2 * time.Second)
		close(done)
	}()

	c.WaitForWaiters(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	c.Advance(2 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	late := c.After(10 * time.Second)
	early := c.After(1 * time.Second)

	c.Advance(time.Minute)

	earlyAt := <-early
	lateAt := <-late
	if !earlyAt.Before(lateAt) {
		t.Errorf("fire times out of order: early=%v late=%v", earlyAt, lateAt)
	}
}

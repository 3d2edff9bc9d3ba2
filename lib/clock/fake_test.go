// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowStandsStill(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	c.Advance(3 * time.Second)
	if got, want := c.Now(), epoch.Add(3*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresOnDeadline(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	channel := c.After(time.Second)

	c.Advance(999 * time.Millisecond)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case fired := <-channel:
		if want := epoch.Add(time.Second); !fired.Equal(want) {
			t.Errorf("fire time = %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositiveIsReady(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should be ready immediately")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}
}

func TestFakeTimerStopRemovesWaiter(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	timer := c.NewTimer(time.Second)
	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", c.PendingCount())
	}
	if !timer.Stop() {
		t.Fatal("Stop on an active timer returned false")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("PendingCount after Stop = %d, want 0", c.PendingCount())
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}

	c.Advance(time.Hour)
	select {
	case <-timer.C:
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFakeTimerReset(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	timer := c.NewTimer(time.Second)
	c.Advance(time.Second)
	<-timer.C

	if timer.Reset(2 * time.Second) {
		t.Error("Reset of a fired timer reported it active")
	}
	c.Advance(time.Second)
	select {
	case <-timer.C:
		t.Fatal("reset timer fired early")
	default:
	}
	c.Advance(time.Second)
	select {
	case <-timer.C:
	default:
		t.Fatal("reset timer did not fire")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(5 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(5 * time.Second)
	<-done
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, fake *clock.FakeClock, size int, interval, maxWait time.Duration) *Limiter {
	t.Helper()
	limiter, err := NewLimiter(LimiterConfig{
		ReservoirSize:   size,
		RefreshInterval: interval,
		MaxQueueWait:    maxWait,
		Clock:           fake,
	})
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	return limiter
}

func TestLimiterAdmitsReservoirThenRejects(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	limiter := newTestLimiter(t, fake, 3, time.Minute, 0)

	for index := range 3 {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("Wait #%d: %v", index, err)
		}
	}
	if err := limiter.Wait(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Wait on exhausted reservoir = %v, want ErrRateLimited", err)
	}
	if fake.PendingCount() != 0 {
		t.Errorf("rejected call left %d timers pending", fake.PendingCount())
	}
}

func TestLimiterQueuesWithinCeiling(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	// One slot per second, burst of two.
	limiter := newTestLimiter(t, fake, 2, 2*time.Second, 5*time.Second)

	for range 2 {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- limiter.Wait(context.Background()) }()

	fake.WaitForTimers(1)
	select {
	case err := <-done:
		t.Fatalf("queued Wait returned early: %v", err)
	default:
	}

	fake.Advance(time.Second)
	if err := testutil.RequireReceive(t, done, 5*time.Second, "queued Wait"); err != nil {
		t.Errorf("queued Wait = %v, want nil", err)
	}
}

func TestLimiterRejectionReturnsSlot(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	limiter := newTestLimiter(t, fake, 1, 10*time.Second, time.Second)

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	for range 3 {
		if err := limiter.Wait(context.Background()); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("Wait beyond ceiling = %v, want ErrRateLimited", err)
		}
	}

	// Rejected reservations must not push the next slot further out.
	fake.Advance(10 * time.Second)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Errorf("Wait after refill = %v, want nil", err)
	}
}

func TestLimiterQueuedWaitHonorsContext(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	limiter := newTestLimiter(t, fake, 1, time.Second, time.Minute)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- limiter.Wait(ctx) }()

	fake.WaitForTimers(1)
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "cancelled Wait"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Wait = %v, want context.Canceled", err)
	}
}

func TestNewLimiterRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	for _, config := range []LimiterConfig{
		{ReservoirSize: 0, RefreshInterval: time.Second},
		{ReservoirSize: 1, RefreshInterval: 0},
		{ReservoirSize: 1, RefreshInterval: time.Second, MaxQueueWait: -time.Second},
	} {
		if _, err := NewLimiter(config); err == nil {
			t.Errorf("NewLimiter(%+v) succeeded, want error", config)
		}
	}
}

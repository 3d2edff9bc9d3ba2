// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reliability

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/concierge/lib/clock"
)

type transitionLog struct {
	mutex sync.Mutex
	seen  []string
}

func (log *transitionLog) record(from, to State) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.seen = append(log.seen, from.String()+"->"+to.String())
}

func (log *transitionLog) transitions() []string {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	return append([]string(nil), log.seen...)
}

func newTestBreaker(t *testing.T, fake *clock.FakeClock, log *transitionLog) *Breaker {
	t.Helper()
	config := BreakerConfig{
		WindowSize:       4,
		MinimumCalls:     4,
		FailureThreshold: 0.5,
		Cooldown:         30 * time.Second,
		Clock:            fake,
	}
	if log != nil {
		config.OnStateChange = log.record
	}
	breaker, err := NewBreaker(config)
	if err != nil {
		t.Fatalf("NewBreaker: %v", err)
	}
	return breaker
}

func record(t *testing.T, breaker *Breaker, outcomes ...Outcome) {
	t.Helper()
	for _, outcome := range outcomes {
		if err := breaker.Allow(); err != nil {
			t.Fatalf("Allow: %v", err)
		}
		breaker.Record(outcome)
	}
}

func TestBreakerOpensAboveThreshold(t *testing.T) {
	t.Parallel()

	breaker := newTestBreaker(t, clock.Fake(epoch), nil)

	record(t, breaker, OutcomeFailure, OutcomeFailure, OutcomeSuccess)
	if breaker.State() != StateClosed {
		t.Fatalf("state below minimum calls = %v, want closed", breaker.State())
	}

	record(t, breaker, OutcomeFailure)
	if breaker.State() != StateOpen {
		t.Errorf("state at 3/4 failures = %v, want open", breaker.State())
	}
}

func TestBreakerThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	breaker := newTestBreaker(t, clock.Fake(epoch), nil)
	record(t, breaker, OutcomeFailure, OutcomeSuccess, OutcomeFailure, OutcomeSuccess)

	if breaker.State() != StateClosed {
		t.Errorf("state at exactly 2/4 failures = %v, want closed", breaker.State())
	}
}

func TestBreakerWindowForgetsOldOutcomes(t *testing.T) {
	t.Parallel()

	breaker := newTestBreaker(t, clock.Fake(epoch), nil)
	record(t, breaker, OutcomeFailure, OutcomeFailure, OutcomeSuccess, OutcomeSuccess)
	// Window is now F F S S. Two more successes push both failures out.
	record(t, breaker, OutcomeSuccess, OutcomeSuccess)
	// One failure in the last four.
	record(t, breaker, OutcomeFailure)

	if breaker.State() != StateClosed {
		t.Errorf("state = %v, want closed", breaker.State())
	}
}

func TestBreakerOpenRefusesUntilCooldown(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	breaker := newTestBreaker(t, fake, nil)
	record(t, breaker, OutcomeFailure, OutcomeFailure, OutcomeFailure, OutcomeFailure)

	for range 10 {
		if err := breaker.Allow(); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("Allow while open = %v, want ErrCircuitOpen", err)
		}
	}

	fake.Advance(29 * time.Second)
	if err := breaker.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow before cooldown = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	log := &transitionLog{}
	breaker := newTestBreaker(t, fake, log)
	record(t, breaker, OutcomeFailure, OutcomeFailure, OutcomeFailure, OutcomeFailure)

	fake.Advance(30 * time.Second)
	if err := breaker.Allow(); err != nil {
		t.Fatalf("trial call Allow = %v, want nil", err)
	}
	if breaker.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", breaker.State())
	}
	if err := breaker.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second Allow during trial call = %v, want ErrCircuitOpen", err)
	}

	breaker.Record(OutcomeSuccess)
	if breaker.State() != StateClosed {
		t.Fatalf("state after successful trial call = %v, want closed", breaker.State())
	}

	// Counters were reset: three failures are below the minimum.
	record(t, breaker, OutcomeFailure, OutcomeFailure, OutcomeFailure)
	if breaker.State() != StateClosed {
		t.Errorf("state after reset = %v, want closed", breaker.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	got := log.transitions()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Errorf("transition %d = %q, want %q", index, got[index], want[index])
		}
	}
}

func TestBreakerFailedTrialRestartsCooldown(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	breaker := newTestBreaker(t, fake, nil)
	record(t, breaker, OutcomeFailure, OutcomeFailure, OutcomeFailure, OutcomeFailure)

	fake.Advance(30 * time.Second)
	record(t, breaker, OutcomeFailure)
	if breaker.State() != StateOpen {
		t.Fatalf("state after failed trial call = %v, want open", breaker.State())
	}

	fake.Advance(20 * time.Second)
	if err := breaker.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow 20s after reopening = %v, want ErrCircuitOpen", err)
	}
	fake.Advance(10 * time.Second)
	if err := breaker.Allow(); err != nil {
		t.Errorf("Allow after second cooldown = %v, want nil", err)
	}
}

func TestBreakerIgnoredTrialReleasesAdmission(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(epoch)
	breaker := newTestBreaker(t, fake, nil)
	record(t, breaker, OutcomeFailure, OutcomeFailure, OutcomeFailure, OutcomeFailure)

	fake.Advance(30 * time.Second)
	record(t, breaker, OutcomeIgnored)
	if breaker.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", breaker.State())
	}
	if err := breaker.Allow(); err != nil {
		t.Errorf("Allow after ignored trial call = %v, want nil", err)
	}
}

func TestNewBreakerRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	for _, config := range []BreakerConfig{
		{WindowSize: 0, FailureThreshold: 0.5, Cooldown: time.Second},
		{WindowSize: 4, FailureThreshold: 0, Cooldown: time.Second},
		{WindowSize: 4, FailureThreshold: 1.5, Cooldown: time.Second},
		{WindowSize: 4, FailureThreshold: 1, Cooldown: time.Second},
		{WindowSize: 4, FailureThreshold: 0.5, Cooldown: 0},
		{WindowSize: 4, MinimumCalls: 5, FailureThreshold: 0.5, Cooldown: time.Second},
	} {
		if _, err := NewBreaker(config); err == nil {
			t.Errorf("NewBreaker(%+v) succeeded, want error", config)
		}
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by every
// time-dependent component of the concierge: the rate-limiter
// reservoir, the circuit breaker cooldown, retry backoff timers, tool
// call timeouts, and the per-turn wall-clock budget.
//
// Production code receives Real(). Tests receive Fake(), which stands
// still until Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go executor.Execute(ctx, scope, call, 5*time.Second)
//	c.WaitForTimers(1)         // the timeout timer is registered
//	c.Advance(5 * time.Second) // the call times out deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing the clock.
package clock

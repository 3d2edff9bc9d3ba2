// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reliability wraps a language model provider with rate
// limiting, retry with exponential backoff, and a circuit breaker.
//
// [Invoker] implements [llm.Provider] as a decorator, so the turn
// orchestrator calls it exactly as it would call a bare provider. Per
// logical call the order is:
//
//  1. [Breaker.Allow]: while the circuit is open every call fails
//     with [ErrCircuitOpen] without touching the provider.
//  2. [Limiter.Wait] before each physical attempt: a call that cannot
//     get a reservoir slot within the queue-wait ceiling fails with
//     [ErrRateLimited].
//  3. The attempt itself, under a per-attempt timeout. Transient
//     failures (network errors, timeouts, 5xx) are retried with
//     capped exponential backoff plus jitter; an explicit 429 from
//     the provider surfaces immediately as [ErrRateLimited]; other
//     provider errors are returned unchanged.
//  4. [Breaker.Record] with the outcome of the whole logical call.
//
// The limiter and breaker hold the only shared mutable state. One of
// each is constructed per provider and passed in; nothing here is a
// package-level singleton. All timing goes through [clock.Clock].
package reliability

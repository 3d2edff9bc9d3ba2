// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reliability

import "errors"

var (
	// ErrRateLimited is returned when the local reservoir cannot
	// admit a call within the queue-wait ceiling, or when the
	// provider itself answers with a rate-limit status.
	ErrRateLimited = errors.New("reliability: rate limited")

	// ErrCircuitOpen is returned without contacting the provider
	// while the circuit breaker is open.
	ErrCircuitOpen = errors.New("reliability: circuit open")

	// ErrRetriesExhausted wraps the last transient error once the
	// retry budget is spent.
	ErrRetriesExhausted = errors.New("reliability: retries exhausted")
)

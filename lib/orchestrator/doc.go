// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives one user turn of a procurement
// conversation from the received message to the persisted reply.
//
// A turn moves through a small state machine:
//
//	building_history → awaiting_provider → (executing_tools → awaiting_provider)* → finalizing → done
//
// with failed reachable from every state except done. The provider
// is called through the reliability layer (rate limit, retry,
// circuit breaker); the orchestrator never retries provider calls
// itself. When the provider asks for tools, every call in the
// response runs concurrently through the tool executor under its own
// timeout, bounded by MaxParallelTools, and the turn waits for all of
// them before the next provider call. Tool failures are data: they
// become error tool results the model can react to and never fail
// the turn.
//
// The loop stops when the provider answers without tool calls, when
// MaxIterations provider calls have been made, or when the optional
// turn budget has elapsed. The last two are graceful cutoffs: the
// turn completes with a partial reply and a marker action in the
// audit log.
//
// Nothing is written until finalizing, which appends the user
// message, every intermediate assistant and tool message, the final
// reply, and the turn's actions in one atomic store call. A failed
// write fails the turn with [KindPersistence] so callers can tell
// "try again" apart from "your message may not have been saved".
package orchestrator

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history builds the bounded message sequence sent to the
// provider for one turn.
//
// A [Builder] takes the persisted conversation history, the new user
// message, and the pinned context (instructions, rolling summary,
// cart snapshot) and produces a [Window]: pinned context, then as much
// recent history as fits the token budget in chronological order,
// then the new user message. Pinned context and the new message are
// always included, even when they alone exceed the budget. History is
// filled newest-first and stops at the first message that does not
// fit, so the included history is always a contiguous suffix.
//
// Token costs come from an [Estimator]. [CharEstimator] divides
// character counts by an adaptive characters-per-token ratio that is
// calibrated from provider usage reports.
package history

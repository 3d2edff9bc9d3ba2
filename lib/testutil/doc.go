// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that tests which hand work to goroutines (turns
// waiting on a fake clock, tool calls blocked on a channel) fail
// cleanly instead of hanging. They are the only place in the test
// suite where a real wall-clock timeout is used.
package testutil

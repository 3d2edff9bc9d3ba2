// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolexec validates and runs tool calls against a registry
// of domain operations.
//
// A [Registry] maps operation names to an [Operation]: a declared
// argument [Schema] and a [Handler]. It is populated once at startup
// and read-only afterwards. The registry never knows what an
// operation does; domain packages register their own.
//
// [Executor.Execute] turns one [llm.ToolCall] into exactly one
// [Result] and never returns an error. Unknown operation names and
// arguments that fail schema validation produce an immediate failed
// result without calling the handler. Otherwise the handler runs in
// its own goroutine under a timeout measured on the injected clock.
// When the timeout fires the executor cancels the handler's context
// and returns a Timeout result without waiting for the handler to
// notice. Handler errors and panics become failed results.
package toolexec

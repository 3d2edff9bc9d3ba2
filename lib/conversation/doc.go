// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conversation holds the persisted chat state of the
// concierge: conversations, their ordered messages, and the audit log
// of actions taken while answering them.
//
// Messages are the canonical turn history. Actions record tool
// invocations and cutoff markers and never rewrite messages. Both are
// append-only; a conversation is deactivated by flipping a flag, never
// deleted.
//
// A [Store] appends a whole turn at once through [Store.AppendTurn]:
// either every message and action of the turn lands or none does.
// Three drivers are provided:
//
//   - [MemoryStore] for tests and throwaway sessions
//   - [SQLiteStore], one IMMEDIATE transaction per turn
//   - [RedisStore], one WATCH/MULTI/EXEC round per turn
//
// The durable drivers store message and action bodies as enveloped
// CBOR (see lib/codec), zstd-compressed above a configurable size.
package conversation

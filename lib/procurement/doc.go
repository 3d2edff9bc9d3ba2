// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package procurement implements the domain operations the concierge
// offers to the language model: catalog search, cart mutation, and
// checkout.
//
// The [Catalog] is read-only after loading and is seeded from a JSONC
// file (JSON with comments and trailing commas). [Carts] holds one
// cart per user in memory. [Register] publishes the operations into a
// toolexec.Registry; the tool executor validates arguments against
// each operation's schema before any handler here runs, so handlers
// read arguments without re-checking types.
package procurement

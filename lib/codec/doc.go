// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the binary encoding used for conversation
// records at rest.
//
// JSON is the format at the provider boundary (tool arguments, tool
// payloads, wire requests). CBOR is the format for stored message and
// action bodies in the SQLite and Redis conversation stores, and for
// the canonical form of tool arguments that the audit log digests.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always produces identical bytes.
//
// [Pack] and [Unpack] add a one-byte envelope on top of CBOR and
// compress bodies larger than a threshold with zstd. Large tool
// payloads (catalog search results, cart snapshots) dominate storage,
// and they compress well.
package codec

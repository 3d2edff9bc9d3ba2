// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the binary entrypoint helper used before the
// structured logger exists or after main has given up on it.
package process

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the concierge binary.
//
// [Commit], [Dirty] and [BuildTime] are injected with -ldflags -X and
// default to "unknown" in development builds and tests:
//
//	go build -ldflags "-X github.com/bureau-foundation/concierge/lib/version.Commit=$(git rev-parse --short HEAD)" ./cmd/concierge
package version

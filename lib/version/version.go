// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"log/slog"
	"runtime"
)

// Set via -ldflags at build time.
var (
	Commit    = "unknown"
	Dirty     = "false"
	BuildTime = "unknown"

	// Version is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns "0.1.0-dev (abc1234-dirty, 2026-10-19T...)".
func Info() string {
	commit := Commit
	if Dirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Full is Info plus the Go toolchain and platform, for --version.
func Full(binary string) string {
	return fmt.Sprintf("%s %s\n  Go: %s\n  Platform: %s/%s",
		binary, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// LogAttr is the attribute binaries attach to their startup log line.
func LogAttr() slog.Attr {
	return slog.String("version", Info())
}

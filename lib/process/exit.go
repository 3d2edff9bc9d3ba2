// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// exitCoder is implemented by errors that carry a specific process
// exit status (for example, a turn failure the client should retry).
type exitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits. The exit status is
// taken from the first error in the chain that implements
// ExitCode() int, and is 1 otherwise.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var coder exitCoder
	if errors.As(err, &coder) {
		os.Exit(coder.ExitCode())
	}
	os.Exit(1)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedCommit, savedDirty, savedTime := Commit, Dirty, BuildTime
	t.Cleanup(func() { Commit, Dirty, BuildTime = savedCommit, savedDirty, savedTime })

	Commit, Dirty, BuildTime = "abc1234", "true", "2026-10-19T00:00:00Z"
	if got, want := Info(), Version+" (abc1234-dirty, 2026-10-19T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	Dirty = "false"
	if got := Info(); strings.Contains(got, "dirty") {
		t.Errorf("Info() = %q, clean build should not be marked dirty", got)
	}
}

func TestFullNamesBinary(t *testing.T) {
	got := Full("concierge")
	if !strings.HasPrefix(got, "concierge "+Version) {
		t.Errorf("Full() = %q, want concierge prefix", got)
	}
	if !strings.Contains(got, "Platform: ") {
		t.Errorf("Full() = %q, missing platform line", got)
	}
}

func TestLogAttr(t *testing.T) {
	attr := LogAttr()
	if attr.Key != "version" || attr.Value.String() != Info() {
		t.Errorf("LogAttr() = %v", attr)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type record struct {
	Role    string         `cbor:"role"`
	Content string         `cbor:"content"`
	Extra   map[string]any `cbor:"extra,omitempty"`
}

func TestPackSmallBodyIsNotCompressed(t *testing.T) {
	t.Parallel()

	packed, err := Pack(record{Role: "user", Content: "find pens"}, 4096)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if Compressed(packed) {
		t.Fatal("small body was compressed")
	}

	var decoded record
	if err := Unpack(packed, &decoded); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if decoded.Role != "user" || decoded.Content != "find pens" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPackLargeBodyIsCompressed(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("ballpoint pen, blue, box of 12; ", 500)
	packed, err := Pack(record{Role: "tool", Content: content}, 1024)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if !Compressed(packed) {
		t.Fatal("large body was not compressed")
	}
	if len(packed) >= len(content) {
		t.Errorf("packed size %d not smaller than content size %d", len(packed), len(content))
	}

	var decoded record
	if err := Unpack(packed, &decoded); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if decoded.Content != content {
		t.Error("content changed across compression")
	}
}

func TestPackZeroThresholdNeverCompresses(t *testing.T) {
	t.Parallel()

	packed, err := Pack(record{Content: strings.Repeat("x", 10000)}, 0)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if Compressed(packed) {
		t.Fatal("threshold 0 should disable compression")
	}
}

func TestUnpackDecodesAnyMapsAsStringKeyed(t *testing.T) {
	t.Parallel()

	packed, err := Pack(record{Extra: map[string]any{"query": "pens", "maxPrice": 5.0}}, 0)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	var decoded map[string]any
	if err := Unpack(packed, &decoded); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	extra, ok := decoded["extra"].(map[string]any)
	if !ok {
		t.Fatalf("extra decoded as %T, want map[string]any", decoded["extra"])
	}
	if extra["query"] != "pens" {
		t.Errorf("query = %v, want pens", extra["query"])
	}
}

func TestUnpackRejectsBadEnvelope(t *testing.T) {
	t.Parallel()

	var decoded record
	if err := Unpack(nil, &decoded); err == nil {
		t.Error("Unpack(nil) succeeded")
	}
	if err := Unpack([]byte{0x7f, 0x00}, &decoded); err == nil {
		t.Error("Unpack with unknown tag succeeded")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Marshal(map[string]any{"b": 2, "a": 1, "c": []any{"x"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(map[string]any{"c": []any{"x"}, "a": 1, "b": 2})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("Marshal is not deterministic across map orderings")
		}
	}
}

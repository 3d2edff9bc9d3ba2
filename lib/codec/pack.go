// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Envelope tags. The first byte of a packed body says how the rest
// is encoded.
const (
	tagCBOR     byte = 0x01
	tagCBORZstd byte = 0x02
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	// EncodeAll and DecodeAll are safe for concurrent use on a shared
	// encoder/decoder.
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Pack encodes v as CBOR and wraps it in a one-byte envelope. When
// threshold is positive and the CBOR body exceeds it, the body is
// zstd-compressed.
func Pack(v any, threshold int) ([]byte, error) {
	body, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: pack: %w", err)
	}
	if threshold > 0 && len(body) > threshold {
		packed := make([]byte, 1, len(body)/2+1)
		packed[0] = tagCBORZstd
		return zstdEncoder.EncodeAll(body, packed), nil
	}
	packed := make([]byte, 0, len(body)+1)
	packed = append(packed, tagCBOR)
	return append(packed, body...), nil
}

// Unpack reverses Pack, decoding the enveloped body into v.
func Unpack(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("codec: unpack: empty body")
	}
	body := data[1:]
	switch data[0] {
	case tagCBOR:
	case tagCBORZstd:
		decompressed, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("codec: unpack: decompressing: %w", err)
		}
		body = decompressed
	default:
		return fmt.Errorf("codec: unpack: unknown envelope tag 0x%02x", data[0])
	}
	if err := Unmarshal(body, v); err != nil {
		return fmt.Errorf("codec: unpack: %w", err)
	}
	return nil
}

// Compressed reports whether a packed body is zstd-compressed.
func Compressed(data []byte) bool {
	return len(data) > 0 && data[0] == tagCBORZstd
}

// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Reused across calls; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("state: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("state: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBody compresses raw with the requested tag. When the data
// turns out incompressible the body is stored raw instead, and the
// returned tag reflects that, so loads never see an inflated body.
func compressBody(raw []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionNone:
		return raw, CompressionNone, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(raw))
		dst := make([]byte, bound)
		written, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("state: lz4 compress: %w", err)
		}
		if written == 0 || written >= len(raw) {
			return raw, CompressionNone, nil
		}
		return dst[:written], CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(raw, nil)
		if len(compressed) >= len(raw) {
			return raw, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("state: unsupported compression tag %d", tag)
	}
}

// decompressBody reverses compressBody. The expected uncompressed
// size comes from the snapshot header and is verified exactly.
func decompressBody(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("state: uncompressed body is %d bytes, header says %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionLZ4:
		dst := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, dst)
		if err != nil {
			return nil, fmt.Errorf("state: lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("state: lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return dst, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("state: zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("state: zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("state: unsupported compression tag %d", tag)
	}
}

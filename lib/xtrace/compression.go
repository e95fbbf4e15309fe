// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xtrace

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how a trace stream is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// String returns the name ParseCompression accepts.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "zstd", or "lz4". The empty string
// selects zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown trace compression %q (want none, zstd or lz4)", name)
	}
}

// Frame magic numbers as they appear at the start of a stream.
var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w in the chosen compressor. Closing the result
// flushes the compressor but does not close w.
func compressWriter(w io.Writer, compression Compression) (io.WriteCloser, error) {
	switch compression {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		return encoder, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported trace compression %s", compression)
	}
}

// zstdReadCloser adapts zstd.Decoder, whose Close has no result.
type zstdReadCloser struct{ decoder *zstd.Decoder }

func (z zstdReadCloser) Read(p []byte) (int, error) { return z.decoder.Read(p) }

func (z zstdReadCloser) Close() error {
	z.decoder.Close()
	return nil
}

// decompressReader detects the compression of r from its first bytes
// and returns a reader of the decompressed stream.
func decompressReader(r io.Reader) (io.ReadCloser, Compression, error) {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(4)
	if err != nil && err != io.EOF {
		return nil, 0, fmt.Errorf("reading trace magic: %w", err)
	}
	switch {
	case bytes.Equal(magic, zstdMagic):
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, 0, fmt.Errorf("creating zstd reader: %w", err)
		}
		return zstdReadCloser{decoder}, CompressionZstd, nil
	case bytes.Equal(magic, lz4Magic):
		return io.NopCloser(lz4.NewReader(buffered)), CompressionLZ4, nil
	default:
		return io.NopCloser(buffered), CompressionNone, nil
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xtrace

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/xreparent/lib/codec"
)

// ErrNotTrace is returned when a stream does not start with a trace
// Header.
var ErrNotTrace = errors.New("not an xreparent trace")

// Reader reads a trace stream written by a Recorder.
type Reader struct {
	decompressed io.ReadCloser
	file         io.Closer
	decoder      *codec.Decoder
	header       Header
	headerRaw    codec.RawMessage
	compression  Compression
}

// Open opens the trace file at path.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.file = file
	return reader, nil
}

// NewReader detects the stream's compression and reads its Header.
func NewReader(r io.Reader) (*Reader, error) {
	decompressed, compression, err := decompressReader(r)
	if err != nil {
		return nil, err
	}
	reader := &Reader{
		decompressed: decompressed,
		decoder:      codec.NewDecoder(decompressed),
		compression:  compression,
	}
	if err := reader.decoder.Decode(&reader.headerRaw); err != nil {
		decompressed.Close()
		return nil, fmt.Errorf("%w: reading header: %v", ErrNotTrace, err)
	}
	if err := codec.Unmarshal(reader.headerRaw, &reader.header); err != nil || reader.header.Format != FormatName {
		decompressed.Close()
		return nil, ErrNotTrace
	}
	if reader.header.Version != FormatVersion {
		decompressed.Close()
		return nil, fmt.Errorf("unsupported trace version %d (this build reads version %d)", reader.header.Version, FormatVersion)
	}
	return reader, nil
}

// Header returns the stream's header.
func (r *Reader) Header() Header { return r.header }

// HeaderRaw returns the header's encoded CBOR.
func (r *Reader) HeaderRaw() codec.RawMessage { return r.headerRaw }

// Compression returns the detected stream compression.
func (r *Reader) Compression() Compression { return r.compression }

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var record Record
	raw, err := r.NextRaw()
	if err != nil {
		return record, err
	}
	if err := codec.Unmarshal(raw, &record); err != nil {
		return record, fmt.Errorf("decoding trace record: %w", err)
	}
	return record, nil
}

// NextRaw returns the next record's encoded CBOR, or io.EOF after the
// last one.
func (r *Reader) NextRaw() (codec.RawMessage, error) {
	var raw codec.RawMessage
	if err := r.decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading trace record: %w", err)
	}
	return raw, nil
}

// Close releases the decompressor and the file opened by Open.
func (r *Reader) Close() error {
	r.decompressed.Close()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

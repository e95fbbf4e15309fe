// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xtrace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bureau-foundation/xreparent/lib/clock"
	"github.com/bureau-foundation/xreparent/lib/codec"
	"github.com/bureau-foundation/xreparent/lib/xwire"
)

// Recorder appends records to a trace stream. It is safe for
// concurrent use by every connection's proxy loop.
//
// Write failures do not interrupt the caller: the first one is kept,
// later records are dropped, and Close reports it.
type Recorder struct {
	clock clock.Clock

	mu         sync.Mutex
	buffered   *bufio.Writer
	compressor io.WriteCloser
	encoder    *codec.Encoder
	file       io.Closer
	err        error
	closed     bool
	count      uint64
}

// Create creates (or truncates) the trace file at path and writes
// header to it.
func Create(path string, compression Compression, header Header, clk clock.Clock) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	recorder, err := NewRecorder(file, compression, header, clk)
	if err != nil {
		file.Close()
		return nil, err
	}
	recorder.file = file
	return recorder, nil
}

// NewRecorder writes header to w and returns a Recorder appending to
// it. Closing the Recorder flushes w but does not close it. A nil clk
// means the real clock.
func NewRecorder(w io.Writer, compression Compression, header Header, clk clock.Clock) (*Recorder, error) {
	if clk == nil {
		clk = clock.Real()
	}
	compressor, err := compressWriter(w, compression)
	if err != nil {
		return nil, err
	}
	buffered := bufio.NewWriter(compressor)

	header.Format = FormatName
	header.Version = FormatVersion
	if header.Started.IsZero() {
		header.Started = clk.Now()
	}
	encoder := codec.NewEncoder(buffered)
	if err := encoder.Encode(header); err != nil {
		return nil, fmt.Errorf("writing trace header: %w", err)
	}
	return &Recorder{
		clock:      clk,
		buffered:   buffered,
		compressor: compressor,
		encoder:    encoder,
	}, nil
}

// Record appends the record for message. payload starts at the
// message's first byte, as the framer saw it.
func (r *Recorder) Record(connection uint64, message xwire.Message, payload []byte) {
	record := NewRecord(r.clock.Now(), connection, message, payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.err != nil {
		return
	}
	if err := r.encoder.Encode(record); err != nil {
		r.err = fmt.Errorf("writing trace record: %w", err)
		return
	}
	r.count++
}

// Count returns how many records have been written.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes the stream and closes the file opened by Create. It
// returns the first write failure seen over the Recorder's lifetime.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.err
	}
	r.closed = true

	errs := []error{r.err}
	if err := r.buffered.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing trace: %w", err))
	}
	if err := r.compressor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finishing trace compression: %w", err))
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing trace file: %w", err))
		}
	}
	r.err = errors.Join(errs...)
	return r.err
}

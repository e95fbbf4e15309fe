// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproxy

import (
	"io"
)

// PendingTransfer is the part of a read that has not been written to
// the other side yet: buf[start:end].
type PendingTransfer struct {
	buf   []byte
	start int
	end   int
}

// Load replaces the pending bytes with data. It must only be called
// when Remaining is zero.
func (p *PendingTransfer) Load(data []byte) {
	if p.Remaining() != 0 {
		panic("xproxy: PendingTransfer loaded while still holding bytes")
	}
	p.buf = data
	p.start = 0
	p.end = len(data)
}

// Remaining returns how many bytes are still to be written.
func (p *PendingTransfer) Remaining() int {
	return p.end - p.start
}

// Drain writes the pending bytes to w until none remain. A write that
// accepts fewer bytes than offered advances start, and the next write
// offers only the rest. It returns the number of bytes written.
func (p *PendingTransfer) Drain(w io.Writer) (int, error) {
	total := 0
	for p.Remaining() > 0 {
		written, err := w.Write(p.buf[p.start:p.end])
		if written < 0 || written > p.Remaining() {
			return total, io.ErrShortWrite
		}
		p.start += written
		total += written
		if err != nil {
			return total, err
		}
		if written == 0 {
			return total, io.ErrNoProgress
		}
	}
	p.buf = nil
	p.start = 0
	p.end = 0
	return total, nil
}

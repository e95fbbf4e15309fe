// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrTruncated marks a message whose declared length runs past the
	// end of the decoded buffer. The bytes are still forwarded.
	ErrTruncated = errors.New("message extends past buffer")

	// ErrBadLength marks a length field smaller than the header that
	// carries it. Framing cannot continue past such a message.
	ErrBadLength = errors.New("length field smaller than header")
)

// Request header sizes. A request with a zero 16-bit length uses the
// BIG-REQUESTS encoding: a 32-bit length follows the 4-byte header.
const (
	RequestHeaderSize    = 4
	BigRequestHeaderSize = 8
)

// createWindowParentOffset is the offset of the parent window in a
// CreateWindow request, after opcode, depth, length and wid. It moves
// by 4 in the BIG-REQUESTS encoding.
const createWindowParentOffset = 8

// RequestView is the decoded header of one client request.
type RequestView struct {
	Opcode Opcode

	// Length is the declared size of the request in bytes, or 0 when
	// the length field could not be read.
	Length int

	// BigRequest is set when the request uses the 32-bit length form.
	BigRequest bool

	// Parent is the CreateWindow parent as received. HasParent is false
	// for other requests and when the field was out of bounds.
	Parent    uint32
	HasParent bool

	// Rewritten is set when Parent matched a root window and was
	// replaced in the buffer.
	Rewritten bool

	// Anomaly records why the request could not be fully decoded. The
	// buffer is unchanged whenever Anomaly prevented a field read.
	Anomaly error
}

// Name returns the request name for diagnostics.
func (v RequestView) Name() string {
	return v.Opcode.String()
}

// Codec holds the per-connection state the decoders need: the byte
// order negotiated at setup, the server's root windows, and the window
// that replaces them as CreateWindow parent.
type Codec struct {
	Order  binary.ByteOrder
	Roots  []uint32
	Target uint32
}

func (c *Codec) isRoot(window uint32) bool {
	for _, root := range c.Roots {
		if root == window {
			return true
		}
	}
	return false
}

// requestLength decodes the length fields of the request at the start
// of reader. The returned length is in bytes.
func requestLength(reader Reader) (length int, big bool, err error) {
	words, err := reader.Uint16(2)
	if err != nil {
		return 0, false, err
	}
	if words != 0 {
		return int(words) * 4, false, nil
	}
	bigWords, err := reader.Uint32(4)
	if err != nil {
		return 0, true, err
	}
	return int(bigWords) * 4, true, nil
}

// DecodeRequest decodes the request at the start of buf. If it is a
// CreateWindow whose parent is one of the connection's root windows,
// the parent is overwritten in buf with the codec's Target. No other
// byte is ever modified.
func (c *Codec) DecodeRequest(buf []byte) RequestView {
	var view RequestView
	reader := NewReader(buf, c.Order)

	opcode, err := reader.Uint8(0)
	if err != nil {
		view.Anomaly = err
		return view
	}
	view.Opcode = Opcode(opcode)

	length, big, err := requestLength(reader)
	view.BigRequest = big
	if err != nil {
		view.Anomaly = err
		return view
	}
	view.Length = length

	headerSize := RequestHeaderSize
	if big {
		headerSize = BigRequestHeaderSize
	}
	if length < headerSize {
		view.Anomaly = fmt.Errorf("%w: %s declares %d bytes", ErrBadLength, view.Opcode, length)
		return view
	}
	if length > len(buf) {
		view.Anomaly = fmt.Errorf("%w: %s declares %d bytes, have %d", ErrTruncated, view.Opcode, length, len(buf))
	}

	if view.Opcode != OpCreateWindow {
		return view
	}

	parentOffset := createWindowParentOffset + headerSize - RequestHeaderSize
	if length < parentOffset+4 {
		view.Anomaly = fmt.Errorf("%w: CreateWindow of %d bytes has no parent field", ErrBadLength, length)
		return view
	}
	parent, err := reader.Uint32(parentOffset)
	if err != nil {
		if view.Anomaly == nil {
			view.Anomaly = err
		}
		return view
	}
	view.Parent = parent
	view.HasParent = true

	if c.isRoot(parent) {
		if err := reader.PutUint32(parentOffset, c.Target); err != nil {
			view.Anomaly = err
			return view
		}
		view.Rewritten = true
	}
	return view
}

// requestNeed returns how many leading bytes of buf the request framer
// must see before it can decode and, for CreateWindow, rewrite the
// request starting there.
func requestNeed(buf []byte, order binary.ByteOrder) int {
	reader := NewReader(buf, order)
	need := RequestHeaderSize
	words, err := reader.Uint16(2)
	if err != nil {
		return need
	}
	headerSize := RequestHeaderSize
	declared := int(words) * 4
	if words == 0 {
		headerSize = BigRequestHeaderSize
		need = BigRequestHeaderSize
		bigWords, err := reader.Uint32(4)
		if err != nil {
			return need
		}
		declared = int(bigWords) * 4
	}
	if declared < headerSize || Opcode(buf[0]) != OpCreateWindow {
		return need
	}
	// A malformed CreateWindow shorter than its parent field is decoded
	// as soon as the whole declared message is present.
	return max(need, min(declared, createWindowParentOffset+headerSize-RequestHeaderSize+4))
}

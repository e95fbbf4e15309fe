// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a field extends past the end of
	// the buffer.
	ErrOutOfBounds = errors.New("field out of bounds")

	// ErrUnknownByteOrder is returned for a setup request whose first
	// byte is neither 'B' nor 'l'.
	ErrUnknownByteOrder = errors.New("unknown byte order marker")
)

// Byte order markers sent as the first byte of a setup request.
const (
	MarkerMSBFirst = 'B'
	MarkerLSBFirst = 'l'
)

// ParseByteOrder maps a setup request's byte order marker to the order
// used for every multi-byte field on that connection.
func ParseByteOrder(marker byte) (binary.ByteOrder, error) {
	switch marker {
	case MarkerMSBFirst:
		return binary.BigEndian, nil
	case MarkerLSBFirst:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownByteOrder, marker)
	}
}

// Pad4 rounds n up to the next multiple of 4.
func Pad4(n int) int {
	return (n + 3) &^ 3
}

// Reader performs bounds-checked field access on a message buffer.
// PutUint32 writes through to the underlying slice.
type Reader struct {
	buf   []byte
	order binary.ByteOrder
}

// NewReader returns a Reader over buf using the given byte order.
func NewReader(buf []byte, order binary.ByteOrder) Reader {
	return Reader{buf: buf, order: order}
}

// Len returns the number of bytes available to the reader.
func (r Reader) Len() int {
	return len(r.buf)
}

func (r Reader) check(offset, width int) error {
	if offset < 0 || width > len(r.buf) || offset > len(r.buf)-width {
		return fmt.Errorf("%w: %d bytes at offset %d, buffer has %d", ErrOutOfBounds, width, offset, len(r.buf))
	}
	return nil
}

// Uint8 reads the byte at offset.
func (r Reader) Uint8(offset int) (uint8, error) {
	if err := r.check(offset, 1); err != nil {
		return 0, err
	}
	return r.buf[offset], nil
}

// Uint16 reads a 16-bit field at offset.
func (r Reader) Uint16(offset int) (uint16, error) {
	if err := r.check(offset, 2); err != nil {
		return 0, err
	}
	return r.order.Uint16(r.buf[offset:]), nil
}

// Uint32 reads a 32-bit field at offset.
func (r Reader) Uint32(offset int) (uint32, error) {
	if err := r.check(offset, 4); err != nil {
		return 0, err
	}
	return r.order.Uint32(r.buf[offset:]), nil
}

// Bytes returns the length bytes at offset without copying.
func (r Reader) Bytes(offset, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrOutOfBounds, length)
	}
	if err := r.check(offset, length); err != nil {
		return nil, err
	}
	return r.buf[offset : offset+length], nil
}

// PutUint32 overwrites the 32-bit field at offset.
func (r Reader) PutUint32(offset int, value uint32) error {
	if err := r.check(offset, 4); err != nil {
		return err
	}
	r.order.PutUint32(r.buf[offset:], value)
	return nil
}

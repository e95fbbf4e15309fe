// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedSetup is returned when a Success setup reply ends before
// the records it declares.
var ErrMalformedSetup = errors.New("malformed setup reply")

// Fixed prefix sizes of the setup messages. Each prefix carries the
// lengths needed to frame the rest of its message.
const (
	SetupRequestPrefixSize = 12
	SetupReplyPrefixSize   = 8
)

// Offsets within a Success setup reply.
const (
	setupReleaseOffset       = 8
	setupResourceBaseOffset  = 12
	setupResourceMaskOffset  = 16
	setupVendorLengthOffset  = 24
	setupMaxRequestOffset    = 26
	setupScreenCountOffset   = 28
	setupFormatCountOffset   = 29
	setupVendorOffset        = 40
	pixmapFormatSize         = 8
	screenSize               = 40
	screenDepthCountOffset   = 39
	depthSize                = 8
	depthVisualCountOffset   = 2
	visualTypeSize           = 24
	setupReplyLengthOffset   = 6
	setupRequestNameOffset   = 6
	setupRequestDataOffset   = 8
	setupProtocolMajorOffset = 2
	setupProtocolMinorOffset = 4
)

// SetupRequestLength returns the total size of a setup request and the
// byte order it selects, given at least its 12-byte prefix.
func SetupRequestLength(prefix []byte) (int, binary.ByteOrder, error) {
	if len(prefix) < SetupRequestPrefixSize {
		return 0, nil, fmt.Errorf("%w: setup request prefix is %d bytes", ErrOutOfBounds, len(prefix))
	}
	order, err := ParseByteOrder(prefix[0])
	if err != nil {
		return 0, nil, err
	}
	reader := NewReader(prefix, order)
	nameLength, _ := reader.Uint16(setupRequestNameOffset)
	dataLength, _ := reader.Uint16(setupRequestDataOffset)
	return SetupRequestPrefixSize + Pad4(int(nameLength)) + Pad4(int(dataLength)), order, nil
}

// SetupReplyLength returns the total size of a setup reply of any
// result code, given at least its 8-byte prefix.
func SetupReplyLength(prefix []byte, order binary.ByteOrder) (int, error) {
	words, err := NewReader(prefix, order).Uint16(setupReplyLengthOffset)
	if err != nil {
		return 0, err
	}
	return SetupReplyPrefixSize + int(words)*4, nil
}

// Setup holds the parts of a Success setup reply the proxy uses.
type Setup struct {
	Order binary.ByteOrder

	ProtocolMajor uint16
	ProtocolMinor uint16
	Release       uint32

	ResourceIDBase uint32
	ResourceIDMask uint32

	// MaximumRequestLength is in 4-byte units, as sent.
	MaximumRequestLength uint16

	Vendor  string
	Formats int

	// Roots holds the root window of each screen in order.
	Roots []uint32
}

// Root returns the root window of the first screen, or 0 for a setup
// without screens.
func (s *Setup) Root() uint32 {
	if len(s.Roots) == 0 {
		return 0
	}
	return s.Roots[0]
}

// ParseSetup decodes a complete Success setup reply. Every record is
// bounds-checked against reply; a record that runs past the end yields
// ErrMalformedSetup.
func ParseSetup(reply []byte, order binary.ByteOrder) (*Setup, error) {
	reader := NewReader(reply, order)

	result, err := reader.Uint8(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	if SetupResult(result) != SetupSuccess {
		return nil, fmt.Errorf("%w: result is %s", ErrMalformedSetup, SetupResult(result))
	}

	setup := &Setup{Order: order}
	fields := []struct {
		offset int
		target *uint32
	}{
		{setupReleaseOffset, &setup.Release},
		{setupResourceBaseOffset, &setup.ResourceIDBase},
		{setupResourceMaskOffset, &setup.ResourceIDMask},
	}
	for _, field := range fields {
		if *field.target, err = reader.Uint32(field.offset); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
		}
	}
	if setup.ProtocolMajor, err = reader.Uint16(setupProtocolMajorOffset); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	if setup.ProtocolMinor, err = reader.Uint16(setupProtocolMinorOffset); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	vendorLength, err := reader.Uint16(setupVendorLengthOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	if setup.MaximumRequestLength, err = reader.Uint16(setupMaxRequestOffset); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	screenCount, err := reader.Uint8(setupScreenCountOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	formatCount, err := reader.Uint8(setupFormatCountOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSetup, err)
	}
	setup.Formats = int(formatCount)

	vendor, err := reader.Bytes(setupVendorOffset, int(vendorLength))
	if err != nil {
		return nil, fmt.Errorf("%w: vendor string: %w", ErrMalformedSetup, err)
	}
	setup.Vendor = string(vendor)

	offset := setupVendorOffset + Pad4(int(vendorLength))
	if _, err := reader.Bytes(offset, int(formatCount)*pixmapFormatSize); err != nil {
		return nil, fmt.Errorf("%w: pixmap formats: %w", ErrMalformedSetup, err)
	}
	offset += int(formatCount) * pixmapFormatSize

	for screen := range int(screenCount) {
		if _, err := reader.Bytes(offset, screenSize); err != nil {
			return nil, fmt.Errorf("%w: screen %d: %w", ErrMalformedSetup, screen, err)
		}
		root, _ := reader.Uint32(offset)
		setup.Roots = append(setup.Roots, root)

		// Depths after the last screen are not needed.
		if screen == int(screenCount)-1 {
			break
		}
		next, err := skipScreen(reader, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: screen %d: %w", ErrMalformedSetup, screen, err)
		}
		offset = next
	}
	return setup, nil
}

// skipScreen returns the offset just past the SCREEN record at offset,
// including its variable-length list of depths and visuals.
func skipScreen(reader Reader, offset int) (int, error) {
	depthCount, err := reader.Uint8(offset + screenDepthCountOffset)
	if err != nil {
		return 0, err
	}
	offset += screenSize
	for range int(depthCount) {
		visualCount, err := reader.Uint16(offset + depthVisualCountOffset)
		if err != nil {
			return 0, err
		}
		offset += depthSize + int(visualCount)*visualTypeSize
	}
	return offset, nil
}

// RefusalReason returns the reason string of a Failed or Authenticate
// setup reply. Failed carries the reason's length in byte 1;
// Authenticate pads its reason with NULs to the end of the reply.
func RefusalReason(reply []byte) string {
	if len(reply) < SetupReplyPrefixSize {
		return ""
	}
	reason := reply[SetupReplyPrefixSize:]
	switch SetupResult(reply[0]) {
	case SetupFailed:
		reason = reason[:min(int(reply[1]), len(reason))]
	case SetupAuthenticate:
		reason = bytes.TrimRight(reason, "\x00")
	default:
		return ""
	}
	return string(reason)
}

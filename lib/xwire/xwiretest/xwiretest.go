// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xwiretest builds well-formed X11 messages for tests of the
// proxy and its codec.
package xwiretest

import (
	"encoding/binary"

	"github.com/bureau-foundation/xreparent/lib/xwire"
)

const (
	screenSize             = 40
	screenDepthCountOffset = 39
	depthSize              = 8
	visualTypeSize         = 24
)

// CreateWindow builds a CreateWindow request with an empty value list.
// The parent field is at offset 8.
func CreateWindow(order binary.ByteOrder, window, parent uint32) []byte {
	buf := make([]byte, 32)
	buf[0] = byte(xwire.OpCreateWindow)
	buf[1] = 24 // depth
	order.PutUint16(buf[2:], 8)
	order.PutUint32(buf[4:], window)
	order.PutUint32(buf[8:], parent)
	order.PutUint16(buf[12:], 10)  // x
	order.PutUint16(buf[14:], 20)  // y
	order.PutUint16(buf[16:], 640) // width
	order.PutUint16(buf[18:], 480) // height
	order.PutUint16(buf[22:], 1)   // class InputOutput
	return buf
}

// BigCreateWindow builds a CreateWindow in the BIG-REQUESTS encoding.
// The parent field is at offset 12.
func BigCreateWindow(order binary.ByteOrder, window, parent uint32) []byte {
	normal := CreateWindow(order, window, parent)
	buf := make([]byte, len(normal)+4)
	copy(buf, normal[:2])
	order.PutUint32(buf[4:], uint32(len(buf)/4))
	copy(buf[8:], normal[4:])
	return buf
}

// Request builds a request with the given opcode and body, zero padded
// to a multiple of 4.
func Request(order binary.ByteOrder, opcode xwire.Opcode, body []byte) []byte {
	length := xwire.Pad4(xwire.RequestHeaderSize + len(body))
	buf := make([]byte, length)
	buf[0] = byte(opcode)
	order.PutUint16(buf[2:], uint16(length/4))
	copy(buf[4:], body)
	return buf
}

// Event builds a 32-byte event.
func Event(order binary.ByteOrder, code uint8, sequence uint16) []byte {
	buf := make([]byte, xwire.ReplySize)
	buf[0] = code
	order.PutUint16(buf[2:], sequence)
	return buf
}

// Error builds a 32-byte error for the given failed request.
func Error(order binary.ByteOrder, code xwire.ErrorCode, major xwire.Opcode, sequence uint16) []byte {
	buf := make([]byte, xwire.ReplySize)
	buf[1] = byte(code)
	order.PutUint16(buf[2:], sequence)
	buf[10] = byte(major)
	return buf
}

// Reply builds a reply carrying extraWords 4-byte words after the
// 32-byte header.
func Reply(order binary.ByteOrder, sequence uint16, extraWords int) []byte {
	buf := make([]byte, xwire.ReplySize+extraWords*4)
	buf[0] = 1
	order.PutUint16(buf[2:], sequence)
	order.PutUint32(buf[4:], uint32(extraWords))
	for i := xwire.ReplySize; i < len(buf); i++ {
		buf[i] = byte(i)
	}
	return buf
}

// Screen describes one screen of a setup reply.
type Screen struct {
	Root uint32

	// Visuals holds the visual count of each allowed depth.
	Visuals []int
}

// SetupReply builds a Success setup reply.
func SetupReply(order binary.ByteOrder, vendor string, formats int, screens []Screen) []byte {
	buf := make([]byte, 40)
	buf[0] = byte(xwire.SetupSuccess)
	order.PutUint16(buf[2:], 11)
	order.PutUint32(buf[8:], 12101004) // release
	order.PutUint32(buf[12:], 0x04000000)
	order.PutUint32(buf[16:], 0x001fffff)
	order.PutUint16(buf[24:], uint16(len(vendor)))
	order.PutUint16(buf[26:], 0xffff)
	buf[28] = byte(len(screens))
	buf[29] = byte(formats)

	vendorField := make([]byte, xwire.Pad4(len(vendor)))
	copy(vendorField, vendor)
	buf = append(buf, vendorField...)
	for i := range formats {
		buf = append(buf, byte(1+i), byte(1+i), 32, 0, 0, 0, 0, 0)
	}
	for _, screen := range screens {
		record := make([]byte, screenSize)
		order.PutUint32(record, screen.Root)
		record[screenDepthCountOffset] = byte(len(screen.Visuals))
		buf = append(buf, record...)
		for _, visuals := range screen.Visuals {
			depth := make([]byte, depthSize)
			depth[0] = 24
			order.PutUint16(depth[2:], uint16(visuals))
			buf = append(buf, depth...)
			buf = append(buf, make([]byte, visuals*visualTypeSize)...)
		}
	}
	order.PutUint16(buf[6:], uint16((len(buf)-xwire.SetupReplyPrefixSize)/4))
	return buf
}

// SimpleSetupReply builds a Success setup reply with one screen whose
// root is root.
func SimpleSetupReply(order binary.ByteOrder, root uint32) []byte {
	return SetupReply(order, "The X.Org Foundation", 2, []Screen{{Root: root, Visuals: []int{2}}})
}

// RefusedSetupReply builds a setup reply with the given result code and
// a reason string.
func RefusedSetupReply(order binary.ByteOrder, result xwire.SetupResult, reason string) []byte {
	buf := make([]byte, xwire.SetupReplyPrefixSize)
	buf[0] = byte(result)
	buf[1] = byte(len(reason))
	order.PutUint16(buf[2:], 11)
	reasonField := make([]byte, xwire.Pad4(len(reason)))
	copy(reasonField, reason)
	buf = append(buf, reasonField...)
	order.PutUint16(buf[6:], uint16(len(reasonField)/4))
	return buf
}

// SetupRequest builds a setup request with the given byte order marker
// and authorization name and data.
func SetupRequest(marker byte, name, data string) []byte {
	order, err := xwire.ParseByteOrder(marker)
	if err != nil {
		panic(err)
	}
	buf := make([]byte, xwire.SetupRequestPrefixSize)
	buf[0] = marker
	order.PutUint16(buf[2:], 11)
	order.PutUint16(buf[6:], uint16(len(name)))
	order.PutUint16(buf[8:], uint16(len(data)))
	nameField := make([]byte, xwire.Pad4(len(name)))
	copy(nameField, name)
	dataField := make([]byte, xwire.Pad4(len(data)))
	copy(dataField, data)
	buf = append(buf, nameField...)
	return append(buf, dataField...)
}

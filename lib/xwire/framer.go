// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import (
	"errors"
	"fmt"
)

// Direction identifies which way a message travels through the proxy.
type Direction uint8

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client->server"
	}
	return "server->client"
}

// MaxHeldBack bounds the bytes Frame leaves unforwarded at the end of
// a buffer: less than the largest header a decision needs, which is a
// BIG-REQUESTS CreateWindow up to its parent field.
const MaxHeldBack = BigRequestHeaderSize + createWindowParentOffset

// Message describes one message header found by a Framer.
type Message struct {
	Direction Direction

	// Offset is where the message starts in the framed buffer.
	Offset int

	// Size is the message's declared size in bytes.
	Size int

	// Continued is set when the message runs past the framed buffer;
	// its remaining bytes arrive in later reads.
	Continued bool

	// Request is set for ClientToServer, Reply for ServerToClient.
	Request RequestView
	Reply   ReplyView

	// Anomaly is a decode problem other than continuation.
	Anomaly error
}

// Name returns the request or reply name.
func (m Message) Name() string {
	if m.Direction == ClientToServer {
		return m.Request.Name()
	}
	return m.Reply.Name()
}

// Framer tracks message boundaries in one direction of a connection.
// It is not safe for concurrent use; each direction owns one.
type Framer struct {
	direction Direction
	codec     *Codec

	// skip counts bytes of the current message that are still to come.
	skip int

	// opaque is set once framing is lost; everything after is passed
	// through without decoding.
	opaque bool
}

// NewFramer returns a Framer positioned at a message boundary, which
// is where the stream stands right after the setup exchange.
func NewFramer(direction Direction, codec *Codec) *Framer {
	return &Framer{direction: direction, codec: codec}
}

// Opaque reports whether framing was lost and decoding has stopped.
func (f *Framer) Opaque() bool {
	return f.opaque
}

// Frame decodes every message header that begins in buf, calling visit
// for each, and returns how many leading bytes may be forwarded now.
// In the client-to-server direction, CreateWindow parents are
// rewritten in buf before Frame returns.
//
// Bytes from the returned count onward hold the start of a message
// whose header is incomplete. The caller must keep them and present
// them again at the front of the next buffer. At most MaxHeldBack bytes
// are ever held back.
func (f *Framer) Frame(buf []byte, visit func(Message)) int {
	position := 0
	for position < len(buf) {
		if f.opaque {
			return len(buf)
		}
		if f.skip > 0 {
			step := min(f.skip, len(buf)-position)
			f.skip -= step
			position += step
			continue
		}

		remaining := buf[position:]
		if len(remaining) < f.need(remaining) {
			return position
		}

		message := f.decode(remaining)
		message.Offset = position
		if visit != nil {
			visit(message)
		}
		if f.opaque {
			return len(buf)
		}
		f.skip = message.Size
	}
	return position
}

// need returns how many bytes at the start of buf must be present
// before the message there can be decoded.
func (f *Framer) need(buf []byte) int {
	if f.direction == ClientToServer {
		return requestNeed(buf, f.codec.Order)
	}
	return replyNeed
}

func (f *Framer) decode(buf []byte) Message {
	message := Message{Direction: f.direction}
	var anomaly error
	if f.direction == ClientToServer {
		view := f.codec.DecodeRequest(buf)
		message.Request = view
		message.Size = view.Length
		anomaly = view.Anomaly

		headerSize := RequestHeaderSize
		if view.BigRequest {
			headerSize = BigRequestHeaderSize
		}
		if view.Length < headerSize {
			f.opaque = true
			message.Anomaly = fmt.Errorf("request framing lost, passing through: %w", anomaly)
			return message
		}
	} else {
		view := f.codec.DecodeReply(buf)
		message.Reply = view
		message.Size = view.Length
		anomaly = view.Anomaly
		if view.Length <= 0 {
			f.opaque = true
			message.Anomaly = fmt.Errorf("reply framing lost, passing through: %w", anomaly)
			return message
		}
	}

	if message.Size > len(buf) {
		message.Continued = true
		// Fields past the buffer end are expected when a message
		// continues in the next read.
		if errors.Is(anomaly, ErrTruncated) || errors.Is(anomaly, ErrOutOfBounds) {
			anomaly = nil
		}
	}
	message.Anomaly = anomaly
	return message
}

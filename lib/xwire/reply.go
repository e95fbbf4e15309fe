// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import "fmt"

// ReplySize is the fixed size of errors, events, and the header of
// replies and generic events.
const ReplySize = 32

// ReplyKind classifies a server-to-client message by its first byte.
type ReplyKind uint8

const (
	KindUnknown ReplyKind = iota
	KindError
	KindReply
	KindEvent
)

func (k ReplyKind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindReply:
		return "reply"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ReplyView is the decoded header of one server-to-client message.
type ReplyView struct {
	Kind ReplyKind

	// Code is the raw first byte: 0 for errors, 1 for replies, the
	// event type (possibly with the SendEvent bit) for events.
	Code uint8

	// Event is the event type with the SendEvent bit cleared.
	Event     EventCode
	SendEvent bool

	// Error is the error number, valid for KindError.
	Error ErrorCode

	// MajorOpcode is the opcode of the failed request, valid for
	// KindError.
	MajorOpcode Opcode

	// Sequence is the sequence number of the last request the server
	// processed. KeymapNotify carries none.
	Sequence    uint16
	HasSequence bool

	// Length is the full size of the message in bytes, or 0 when it
	// could not be read.
	Length int

	// Anomaly records a field that could not be read.
	Anomaly error
}

// Name returns a diagnostic label such as "Reply", "Error(Window)" or
// "ConfigureNotify".
func (v ReplyView) Name() string {
	switch v.Kind {
	case KindError:
		return "Error(" + v.Error.String() + ")"
	case KindReply:
		return "Reply"
	case KindEvent:
		return v.Event.String()
	default:
		return "Unknown"
	}
}

// DecodeReply decodes the header of the server message at the start of
// buf. It never modifies buf.
func (c *Codec) DecodeReply(buf []byte) ReplyView {
	var view ReplyView
	reader := NewReader(buf, c.Order)

	code, err := reader.Uint8(0)
	if err != nil {
		view.Anomaly = err
		return view
	}
	view.Code = code

	switch code {
	case 0:
		view.Kind = KindError
		view.Length = ReplySize
		if detail, err := reader.Uint8(1); err == nil {
			view.Error = ErrorCode(detail)
		} else {
			view.Anomaly = err
		}
		if major, err := reader.Uint8(10); err == nil {
			view.MajorOpcode = Opcode(major)
		} else if view.Anomaly == nil {
			view.Anomaly = err
		}
	case 1:
		view.Kind = KindReply
		view.Length = c.extendedLength(reader, &view)
	default:
		view.Kind = KindEvent
		view.Event = EventCode(code &^ sendEventBit)
		view.SendEvent = code&sendEventBit != 0
		view.Length = ReplySize
		if view.Event == EventGenericEvent {
			view.Length = c.extendedLength(reader, &view)
		}
	}

	if view.Event != EventKeymapNotify || view.Kind != KindEvent {
		if sequence, err := reader.Uint16(2); err == nil {
			view.Sequence = sequence
			view.HasSequence = true
		} else if view.Anomaly == nil {
			view.Anomaly = err
		}
	}

	if view.Length > len(buf) && view.Anomaly == nil {
		view.Anomaly = fmt.Errorf("%w: %s declares %d bytes, have %d", ErrTruncated, view.Name(), view.Length, len(buf))
	}
	return view
}

// extendedLength reads the 32-bit word count at offset 4 that follows
// the 32-byte header of replies and generic events.
func (c *Codec) extendedLength(reader Reader, view *ReplyView) int {
	words, err := reader.Uint32(4)
	if err != nil {
		view.Anomaly = err
		return 0
	}
	return ReplySize + int(words)*4
}

// replyNeed is the number of leading bytes the reply framer must see
// to know a message's length.
const replyNeed = 8

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xtrace

import (
	"time"

	"github.com/bureau-foundation/xreparent/lib/xwire"
)

// FormatName and FormatVersion identify a trace stream in its Header.
const (
	FormatName    = "xreparent-trace"
	FormatVersion = 1
)

// Header is the first item of every trace stream.
type Header struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Started time.Time `json:"started"`

	// Upstream and Listen are the display specs the proxy connected
	// to and served.
	Upstream string `json:"upstream,omitempty"`
	Listen   string `json:"listen,omitempty"`

	// Target is the window that replaced root parents.
	Target uint32 `json:"target"`

	// Producer identifies the build that wrote the trace.
	Producer string `json:"producer,omitempty"`
}

// Record describes one forwarded message.
type Record struct {
	Time       time.Time `json:"time"`
	Connection uint64    `json:"connection"`
	Direction  string    `json:"direction"`

	// Kind is "request" for client messages and the reply kind
	// ("error", "reply", "event") for server messages.
	Kind string `json:"kind"`
	Name string `json:"name"`

	// Code is the request opcode or the reply type byte.
	Code uint8 `json:"code"`

	// Size is the declared message size. Continued is set when the
	// message ran past the read it started in; the digest then covers
	// only the bytes of that read.
	Size      int  `json:"size"`
	Continued bool `json:"continued,omitempty"`

	Sequence  uint16 `json:"sequence,omitempty"`
	Parent    uint32 `json:"parent,omitempty"`
	Rewritten bool   `json:"rewritten,omitempty"`
	Anomaly   string `json:"anomaly,omitempty"`

	Digest []byte `json:"digest,omitempty"`
}

// NewRecord builds the record for message, which was framed at the
// start of payload. payload is cut to the message's declared size.
func NewRecord(now time.Time, connection uint64, message xwire.Message, payload []byte) Record {
	if message.Size > 0 && message.Size < len(payload) {
		payload = payload[:message.Size]
	}
	digest := DigestPayload(payload)
	record := Record{
		Time:       now,
		Connection: connection,
		Direction:  message.Direction.String(),
		Name:       message.Name(),
		Size:       message.Size,
		Continued:  message.Continued,
		Digest:     digest[:],
	}
	if message.Direction == xwire.ClientToServer {
		request := message.Request
		record.Kind = "request"
		record.Code = uint8(request.Opcode)
		if request.HasParent {
			record.Parent = request.Parent
		}
		record.Rewritten = request.Rewritten
	} else {
		reply := message.Reply
		record.Kind = reply.Kind.String()
		record.Code = reply.Code
		if reply.HasSequence {
			record.Sequence = reply.Sequence
		}
	}
	if message.Anomaly != nil {
		record.Anomaly = message.Anomaly.Error()
	}
	return record
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproxy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/xreparent/lib/xwire"
)

var (
	// ErrHandshakeFailed is wrapped by every error Negotiate returns.
	ErrHandshakeFailed = errors.New("connection setup failed")

	// ErrSetupRejected means the server answered Failed. The reply was
	// forwarded to the client.
	ErrSetupRejected = fmt.Errorf("%w: server refused the connection", ErrHandshakeFailed)

	// ErrAuthenticationRequired means the server answered Authenticate.
	// The reply was forwarded to the client.
	ErrAuthenticationRequired = fmt.Errorf("%w: server requires further authentication", ErrHandshakeFailed)

	// ErrUnknownSetupResult means the server's result code is none of
	// Failed, Success or Authenticate. The reply was forwarded to the
	// client.
	ErrUnknownSetupResult = fmt.Errorf("%w: unknown setup result", ErrHandshakeFailed)
)

// Negotiate relays the connection setup exchange from client to server
// and back, and returns the server's parsed Success reply.
//
// Both messages are read in full, using the lengths in their fixed
// prefixes, and forwarded byte for byte. A refused setup is forwarded
// to the client so it can report the server's reason, then reported as
// an error. The refusal reaches the client on purpose even though
// Negotiate fails, so callers must not write anything else to the
// client after a refusal and need only close both connections. A
// malformed Success reply is not forwarded.
func Negotiate(client, server io.ReadWriter) (*xwire.Setup, error) {
	request, order, err := readSetupRequest(client)
	if err != nil {
		return nil, err
	}
	if err := writeAll(server, request); err != nil {
		return nil, fmt.Errorf("%w: forwarding setup request: %w", ErrHandshakeFailed, err)
	}

	reply, err := readSetupReply(server, order)
	if err != nil {
		return nil, err
	}

	result := xwire.SetupResult(reply[0])
	if result != xwire.SetupSuccess {
		var refusal error
		switch result {
		case xwire.SetupFailed:
			refusal = ErrSetupRejected
		case xwire.SetupAuthenticate:
			refusal = ErrAuthenticationRequired
		default:
			refusal = fmt.Errorf("%w %d", ErrUnknownSetupResult, reply[0])
		}
		if reason := xwire.RefusalReason(reply); reason != "" {
			refusal = fmt.Errorf("%w: %q", refusal, reason)
		}
		if err := writeAll(client, reply); err != nil {
			return nil, errors.Join(refusal, fmt.Errorf("forwarding refusal to client: %w", err))
		}
		return nil, refusal
	}

	setup, err := xwire.ParseSetup(reply, order)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if err := writeAll(client, reply); err != nil {
		return nil, fmt.Errorf("%w: forwarding setup reply: %w", ErrHandshakeFailed, err)
	}
	return setup, nil
}

func readSetupRequest(client io.Reader) ([]byte, binary.ByteOrder, error) {
	prefix := make([]byte, xwire.SetupRequestPrefixSize)
	if err := readMessage(client, prefix, "client setup request"); err != nil {
		return nil, nil, err
	}
	total, order, err := xwire.SetupRequestLength(prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	request := make([]byte, total)
	copy(request, prefix)
	if err := readMessage(client, request[len(prefix):], "client setup request"); err != nil {
		return nil, nil, err
	}
	return request, order, nil
}

func readSetupReply(server io.Reader, order binary.ByteOrder) ([]byte, error) {
	prefix := make([]byte, xwire.SetupReplyPrefixSize)
	if err := readMessage(server, prefix, "server setup reply"); err != nil {
		return nil, err
	}
	total, err := xwire.SetupReplyLength(prefix, order)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	reply := make([]byte, total)
	copy(reply, prefix)
	if err := readMessage(server, reply[len(prefix):], "server setup reply"); err != nil {
		return nil, err
	}
	return reply, nil
}

// readMessage fills buf from r, naming the message in any failure.
func readMessage(r io.Reader, buf []byte, what string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: peer closed before sending %s", ErrHandshakeFailed, what)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("%w: peer closed in the middle of %s", ErrHandshakeFailed, what)
		default:
			return fmt.Errorf("%w: reading %s: %w", ErrHandshakeFailed, what, err)
		}
	}
	return nil
}

// writeAll writes buf to w. io.Writer already requires an error for a
// short write; the check covers writers that break that rule.
func writeAll(w io.Writer, buf []byte) error {
	written, err := w.Write(buf)
	if err != nil {
		return err
	}
	if written != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

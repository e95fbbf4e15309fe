// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproxy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/xreparent/lib/testutil"
	"github.com/bureau-foundation/xreparent/lib/xwire"
	"github.com/bureau-foundation/xreparent/lib/xwire/xwiretest"
)

type negotiateResult struct {
	setup *xwire.Setup
	err   error
}

// startNegotiate runs Negotiate between two socket pairs and returns
// the application's end, the display's end, and the result channel.
func startNegotiate(t *testing.T) (app, display net.Conn, result <-chan negotiateResult) {
	t.Helper()
	app, proxyClient := testutil.SocketPair(t)
	proxyServer, display := testutil.SocketPair(t)
	app.SetDeadline(time.Now().Add(testTimeout))
	display.SetDeadline(time.Now().Add(testTimeout))

	results := make(chan negotiateResult, 1)
	go func() {
		setup, err := Negotiate(proxyClient, proxyServer)
		results <- negotiateResult{setup, err}
	}()
	return app, display, results
}

// readExactly reads n bytes from conn.
func readExactly(t *testing.T, conn io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("reading %d bytes: %v", n, err)
	}
	return buf
}

func TestNegotiateSuccess(t *testing.T) {
	for _, marker := range []byte{xwire.MarkerLSBFirst, xwire.MarkerMSBFirst} {
		t.Run(string(marker), func(t *testing.T) {
			order, _ := xwire.ParseByteOrder(marker)
			app, display, results := startNegotiate(t)

			request := xwiretest.SetupRequest(marker, "MIT-MAGIC-COOKIE-1", "0123456789abcdef")
			// Deliver the request in two pieces to exercise exact framing.
			app.Write(request[:5])
			app.Write(request[5:])
			if got := readExactly(t, display, len(request)); !bytes.Equal(got, request) {
				t.Fatalf("forwarded request\n got %x\nwant %x", got, request)
			}

			reply := xwiretest.SimpleSetupReply(order, testRoot)
			display.Write(reply)
			if got := readExactly(t, app, len(reply)); !bytes.Equal(got, reply) {
				t.Fatal("setup reply was not forwarded unchanged")
			}

			result := testutil.RequireReceive(t, results, testTimeout, "Negotiate result")
			if result.err != nil {
				t.Fatalf("Negotiate: %v", result.err)
			}
			if result.setup.Root() != testRoot {
				t.Errorf("Root() = %#x, want %#x", result.setup.Root(), testRoot)
			}
			if result.setup.Order != order {
				t.Errorf("Order = %v, want %v", result.setup.Order, order)
			}
		})
	}
}

func TestNegotiateDoesNotConsumeStream(t *testing.T) {
	order := binary.LittleEndian
	app, display, results := startNegotiate(t)

	request := xwiretest.SetupRequest('l', "", "")
	createWindow := xwiretest.CreateWindow(order, 0x1a00002, testRoot)
	// The first request arrives in the same write as the setup.
	app.Write(append(bytes.Clone(request), createWindow...))
	readExactly(t, display, len(request))
	display.Write(xwiretest.SimpleSetupReply(order, testRoot))
	readExactly(t, app, len(xwiretest.SimpleSetupReply(order, testRoot)))

	if result := testutil.RequireReceive(t, results, testTimeout, "Negotiate result"); result.err != nil {
		t.Fatalf("Negotiate: %v", result.err)
	}
	display.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if n, err := display.Read(make([]byte, 64)); err == nil {
		t.Fatalf("Negotiate forwarded %d bytes past the setup request", n)
	}
}

func TestNegotiateRefusals(t *testing.T) {
	order := binary.BigEndian
	unknown := xwiretest.RefusedSetupReply(order, xwire.SetupFailed, "odd")
	unknown[0] = 7

	tests := []struct {
		name   string
		reply  []byte
		want   error
		reason string
	}{
		{"failed", xwiretest.RefusedSetupReply(order, xwire.SetupFailed, "No protocol specified"), ErrSetupRejected, "No protocol specified"},
		{"authenticate", xwiretest.RefusedSetupReply(order, xwire.SetupAuthenticate, "xauth"), ErrAuthenticationRequired, "xauth"},
		{"unknown", unknown, ErrUnknownSetupResult, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			app, display, results := startNegotiate(t)
			request := xwiretest.SetupRequest('B', "", "")
			app.Write(request)
			readExactly(t, display, len(request))
			display.Write(test.reply)

			// The client still sees the server's answer.
			if got := readExactly(t, app, len(test.reply)); !bytes.Equal(got, test.reply) {
				t.Fatal("refusal was not forwarded unchanged")
			}
			result := testutil.RequireReceive(t, results, testTimeout, "Negotiate result")
			if !errors.Is(result.err, test.want) || !errors.Is(result.err, ErrHandshakeFailed) {
				t.Fatalf("error = %v, want %v", result.err, test.want)
			}
			if test.reason != "" && !bytes.Contains([]byte(result.err.Error()), []byte(test.reason)) {
				t.Errorf("error %q does not carry the reason %q", result.err, test.reason)
			}
		})
	}
}

func TestNegotiateMalformedSuccessNotForwarded(t *testing.T) {
	order := binary.LittleEndian
	reply := xwiretest.SimpleSetupReply(order, testRoot)
	// Declare more screens than the reply carries.
	reply[28] = 4

	app, display, results := startNegotiate(t)
	request := xwiretest.SetupRequest('l', "", "")
	app.Write(request)
	readExactly(t, display, len(request))
	display.Write(reply)

	result := testutil.RequireReceive(t, results, testTimeout, "Negotiate result")
	if !errors.Is(result.err, ErrHandshakeFailed) || !errors.Is(result.err, xwire.ErrMalformedSetup) {
		t.Fatalf("error = %v, want malformed setup", result.err)
	}
	app.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if n, err := app.Read(make([]byte, 8)); err == nil {
		t.Fatalf("client received %d bytes of a malformed reply", n)
	}
}

func TestNegotiateFailures(t *testing.T) {
	tests := []struct {
		name  string
		drive func(t *testing.T, app, display net.Conn)
	}{
		{"client closes before setup", func(t *testing.T, app, display net.Conn) {
			app.Close()
		}},
		{"client closes mid request", func(t *testing.T, app, display net.Conn) {
			app.Write(xwiretest.SetupRequest('l', "MIT-MAGIC-COOKIE-1", "")[:14])
			app.Close()
		}},
		{"unknown byte order", func(t *testing.T, app, display net.Conn) {
			request := xwiretest.SetupRequest('l', "", "")
			request[0] = 'x'
			app.Write(request)
		}},
		{"server closes before reply", func(t *testing.T, app, display net.Conn) {
			app.Write(xwiretest.SetupRequest('l', "", ""))
			readExactly(t, display, xwire.SetupRequestPrefixSize)
			display.Close()
		}},
		{"server closes mid reply", func(t *testing.T, app, display net.Conn) {
			app.Write(xwiretest.SetupRequest('l', "", ""))
			readExactly(t, display, xwire.SetupRequestPrefixSize)
			display.Write(xwiretest.SimpleSetupReply(binary.LittleEndian, testRoot)[:20])
			display.Close()
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			app, display, results := startNegotiate(t)
			test.drive(t, app, display)
			result := testutil.RequireReceive(t, results, testTimeout, "Negotiate result")
			if !errors.Is(result.err, ErrHandshakeFailed) {
				t.Fatalf("error = %v, want ErrHandshakeFailed", result.err)
			}
			if result.setup != nil {
				t.Fatal("failed Negotiate returned a setup")
			}
		})
	}
}

func TestNegotiateShortWrite(t *testing.T) {
	request := xwiretest.SetupRequest('l', "", "")
	client := &scriptedConn{reader: bytes.NewReader(request)}
	server := &scriptedConn{writeLimit: 4}
	_, err := Negotiate(client, server)
	if !errors.Is(err, ErrHandshakeFailed) || !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("error = %v, want short write", err)
	}
}

// scriptedConn reads from reader and accepts at most writeLimit bytes
// per write without reporting an error, when writeLimit is positive.
type scriptedConn struct {
	reader     io.Reader
	writeLimit int
	written    bytes.Buffer
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	if c.reader == nil {
		return 0, io.EOF
	}
	return c.reader.Read(p)
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	if c.writeLimit > 0 && len(p) > c.writeLimit {
		p = p[:c.writeLimit]
	}
	return c.written.Write(p)
}

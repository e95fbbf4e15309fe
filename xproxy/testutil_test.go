// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproxy

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/xreparent/lib/display"
	"github.com/bureau-foundation/xreparent/lib/testutil"
	"github.com/bureau-foundation/xreparent/lib/xwire"
	"github.com/bureau-foundation/xreparent/lib/xwire/xwiretest"
)

const (
	testRoot   uint32 = 0x2c00001
	testTarget uint32 = 0x3e00007

	testTimeout = 5 * time.Second
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testAddress returns a display address whose socket lives in a fresh
// short directory.
func testAddress(t *testing.T, number string) display.Address {
	t.Helper()
	return display.Address{
		Spec:   ":" + number,
		Number: number,
		Path:   filepath.Join(testutil.SocketDir(t), "X"+number),
	}
}

// fakeDisplay is an upstream display server. It answers every setup
// request with reply, then records the client's stream until the
// client closes.
type fakeDisplay struct {
	address  display.Address
	reply    []byte
	requests chan []byte
	streams  chan []byte
	conns    chan net.Conn

	mu   sync.Mutex
	open []net.Conn
}

func startFakeDisplay(t *testing.T, reply []byte) *fakeDisplay {
	t.Helper()
	server := &fakeDisplay{
		address:  testAddress(t, "0"),
		reply:    reply,
		requests: make(chan []byte, 16),
		streams:  make(chan []byte, 16),
		conns:    make(chan net.Conn, 16),
	}
	listener, err := net.Listen("unix", server.address.Path)
	if err != nil {
		t.Fatalf("fake display listen: %v", err)
	}
	t.Cleanup(func() {
		listener.Close()
		server.mu.Lock()
		defer server.mu.Unlock()
		for _, conn := range server.open {
			conn.Close()
		}
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			server.mu.Lock()
			server.open = append(server.open, conn)
			server.mu.Unlock()
			go server.serve(conn)
		}
	}()
	return server
}

func (f *fakeDisplay) serve(conn net.Conn) {
	prefix := make([]byte, xwire.SetupRequestPrefixSize)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return
	}
	total, _, err := xwire.SetupRequestLength(prefix)
	if err != nil {
		return
	}
	request := make([]byte, total)
	copy(request, prefix)
	if _, err := io.ReadFull(conn, request[len(prefix):]); err != nil {
		return
	}
	f.requests <- request
	if _, err := conn.Write(f.reply); err != nil {
		return
	}
	f.conns <- conn
	stream, _ := io.ReadAll(conn)
	f.streams <- stream
}

// connectClient dials path as an X client would and completes setup.
// It returns the connection and the setup reply it received.
func connectClient(t *testing.T, path string, marker byte) (net.Conn, []byte) {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, testTimeout)
	if err != nil {
		t.Fatalf("dialing proxy: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(testTimeout))
	if _, err := conn.Write(xwiretest.SetupRequest(marker, "MIT-MAGIC-COOKIE-1", "0123456789abcdef")); err != nil {
		t.Fatalf("writing setup request: %v", err)
	}
	order, err := xwire.ParseByteOrder(marker)
	if err != nil {
		t.Fatal(err)
	}
	return conn, readSetupReplyFrom(t, conn, order)
}

func readSetupReplyFrom(t *testing.T, conn io.Reader, order binary.ByteOrder) []byte {
	t.Helper()
	prefix := make([]byte, xwire.SetupReplyPrefixSize)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		t.Fatalf("reading setup reply prefix: %v", err)
	}
	total, err := xwire.SetupReplyLength(prefix, order)
	if err != nil {
		t.Fatal(err)
	}
	reply := make([]byte, total)
	copy(reply, prefix)
	if _, err := io.ReadFull(conn, reply[len(prefix):]); err != nil {
		t.Fatalf("reading setup reply: %v", err)
	}
	return reply
}

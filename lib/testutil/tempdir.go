// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// SocketDir creates a short-named temporary directory directly in /tmp,
// removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "xreparent-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// SocketPair returns a connected pair of Unix stream sockets. Both ends
// are closed when the test completes; closing them earlier is fine.
func SocketPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	descriptors, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	first := fileConn(t, descriptors[0], "socketpair-0")
	second := fileConn(t, descriptors[1], "socketpair-1")
	t.Cleanup(func() {
		first.Close()
		second.Close()
	})
	return first, second
}

// fileConn wraps a raw descriptor in a net.Conn. net.FileConn dups the
// descriptor, so the original is closed here.
func fileConn(t *testing.T, descriptor int, name string) net.Conn {
	t.Helper()
	file := os.NewFile(uintptr(descriptor), name)
	defer file.Close()
	connection, err := net.FileConn(file)
	if err != nil {
		t.Fatalf("%s: %v", name, fmt.Errorf("wrapping descriptor: %w", err))
	}
	return connection
}

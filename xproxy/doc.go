// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xproxy interposes on X11 client connections and reparents
// their top-level windows.
//
// A Supervisor listens on a synthetic display socket. For every client
// it connects to the real display, relays the connection setup with
// Negotiate to learn the server's byte order and root windows, then
// runs a Loop that forwards both directions. In the client-to-server
// direction every CreateWindow whose parent is a root window has that
// parent replaced by the Supervisor's Target, so the client's
// top-level windows appear inside the target window. Nothing else is
// modified.
//
// Each connection runs in its own goroutine, and each Loop runs one
// goroutine per direction. A connection that fails only ends itself.
// The Supervisor stops once WorkloadExited has been called and every
// connection it served has closed.
package xproxy

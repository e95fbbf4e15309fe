// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Xreparent runs an X11 client inside another application's window.
//
// It listens on a synthetic display, forwards every client connection
// to the real display, and rewrites each CreateWindow whose parent is
// a root window so that the new window is created as a child of the
// container window named on the command line. Everything else passes
// through byte for byte.
//
// Usage:
//
//	xreparent [flags] PARENT_XID_HEX [command [args...]]
//
// When a command is given it runs with DISPLAY pointing at the
// synthetic display. Once it exits, xreparent keeps serving the
// clients that are still connected and stops when the last one
// disconnects. Without a command, xreparent serves until interrupted.
//
// Flags after PARENT_XID_HEX belong to the command. A config file
// (--config or $XREPARENT_CONFIG) supplies defaults; flags given on
// the command line override it. When the config file names the parent
// window, PARENT_XID_HEX is omitted and every positional argument is
// the command.
package main

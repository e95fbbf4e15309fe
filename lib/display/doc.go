// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package display resolves X11 display specifiers (":1", "unix:0.1")
// to the Unix-domain socket that serves them.
//
// Only local displays are supported. The socket for display N lives at
// [SocketDirectory] followed by N, the convention every X server on
// Linux follows. [Resolve] validates the specifier and checks that the
// resulting path fits in sockaddr_un; it has no side effects. The
// returned [Address] is an immutable value shared freely between the
// listener and each connection's upstream dialer.
package display

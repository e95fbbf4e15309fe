// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xwire decodes just enough of the X11 wire protocol to proxy
// it: the connection setup exchange, request headers, and the headers
// of replies, events and errors. The one request it looks inside is
// CreateWindow, whose parent field it can rewrite in place.
//
// Every field access goes through [Reader], which checks offset and
// width against the buffer and returns [ErrOutOfBounds] rather than
// panicking. Decoders never fail: a field that cannot be read becomes
// an Anomaly on the returned view and the bytes are left untouched, so
// callers can always forward the original data.
//
// Multi-byte fields use the byte order the client chose in its setup
// request ('B' for MSB first, 'l' for LSB first); see [ParseByteOrder].
//
// [Framer] walks one direction of a connection's byte stream, where a
// single read can hold several messages or a fragment of one, and
// calls the decoders once per message header.
package xwire

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xtrace records the messages a proxy forwards, one CBOR item
// per message, and reads those recordings back.
//
// A trace file is a single compressed stream (zstd, lz4, or none)
// holding a CBOR sequence: one Header followed by any number of
// Records. Readers detect the compression from the stream's magic
// bytes, so a file needs no side information to be decoded.
//
// Records never carry message bytes. Each one carries a BLAKE3 keyed
// digest of the bytes forwarded for that message, which is enough to
// tell whether two runs sent the same thing without putting window
// contents or keystrokes on disk.
package xtrace

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Xreparent-trace prints a protocol trace written by xreparent --trace.
//
// Usage:
//
//	xreparent-trace [--json | --summary] FILE
//
// By default the header and every record are printed one per line in
// CBOR diagnostic notation, which shows exactly what is stored. With
// --json each line is a JSON object instead, for jq and similar tools.
// --summary prints message counts per direction and name, the number
// of rewritten CreateWindow requests, and the anomalies seen.
//
// Compression is detected from the file, so zstd, lz4 and
// uncompressed traces are all read the same way.
package main

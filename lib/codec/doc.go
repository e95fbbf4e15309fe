// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for wire traces.
//
// Every trace writer and reader goes through the modes defined here so
// that a record encodes to the same bytes wherever it is produced. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2) with
// RFC 3339 timestamps.
//
// For single items:
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// For streams of records:
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// Types serialized only as CBOR carry `cbor` struct tags. Types that
// are also printed as JSON carry `json` tags, which fxamacker/cbor
// reads when no `cbor` tag is present. A field never carries both.
package codec

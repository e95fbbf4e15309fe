// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xtrace

import (
	"github.com/zeebo/blake3"
)

// Digest is a BLAKE3 keyed hash of a message's forwarded bytes.
type Digest [32]byte

// payloadDomainKey is the ASCII domain name zero-padded to 32 bytes.
// Changing it makes digests from older traces incomparable.
var payloadDomainKey = [32]byte{
	'x', 'r', 'e', 'p', 'a', 'r', 'e', 'n', 't', '.', 't', 'r', 'a', 'c', 'e', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestPayload returns the payload-domain digest of data.
func DigestPayload(data []byte) Digest {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("xtrace: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

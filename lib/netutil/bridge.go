// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
)

// Bridge runs forward and backward concurrently, one goroutine each,
// and returns when both have finished. The first to return closes a
// and b so the other, blocked in a read or write, unblocks.
//
// The result is the error from the direction that finished first,
// unless it was an ordinary close (see IsExpectedCloseError); then it
// is the second direction's error under the same rule, or nil.
func Bridge(a, b io.Closer, forward, backward func() error) error {
	done := make(chan error, 2)
	go func() { done <- forward() }()
	go func() { done <- backward() }()

	first := <-done
	a.Close()
	b.Close()
	second := <-done

	for _, err := range []error{first, second} {
		if err != nil && !IsExpectedCloseError(err) {
			return err
		}
	}
	return nil
}

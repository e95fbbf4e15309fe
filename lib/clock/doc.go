// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that waits on time takes a Clock instead of calling the time
// package directly. Production passes Real(); tests pass Fake(), which
// only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	supervisor := &xproxy.Supervisor{Clock: c, OrphanTimeout: time.Minute}
//	// ... start the goroutine that waits ...
//	c.WaitForTimers(1)
//	c.Advance(time.Minute)
//
// WaitForTimers closes the race between a goroutine registering its
// timer and the test advancing past it.
package clock

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for xreparent binaries:
// fatal error reporting before or after the structured logger exists,
// and supervision of the wrapped workload command.
//
// A [Workload] is the child command xreparent runs against its
// synthetic display. Its exit is reported on [Workload.Done]; the
// caller decides what exit means (for the proxy, that no new clients
// are expected once the current ones finish). A non-zero exit status
// is an ordinary outcome, not a failure of the wrapper.
package process

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides connection plumbing shared by the proxy and
// its tests: a two-direction bridge that tears both sockets down when
// either direction ends, and classification of the errors that
// teardown produces.
package netutil

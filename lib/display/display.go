// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SocketDirectory is the path prefix of local X11 display sockets. The
// display identifier is appended directly: display ":1" is served at
// "/tmp/.X11-unix/X1".
const SocketDirectory = "/tmp/.X11-unix/X"

// ErrInvalidDisplay is returned for display specifiers that cannot be
// mapped to a local socket path.
var ErrInvalidDisplay = errors.New("invalid display")

// maxPathLength is the longest socket path that fits in sun_path with
// its terminating NUL.
var maxPathLength = len(unix.RawSockaddrUnix{}.Path) - 1

// Address is a resolved local display.
type Address struct {
	// Spec is the specifier as given, e.g. ":1" or "unix:1.0".
	Spec string

	// Number is the display identifier, e.g. "1".
	Number string

	// Screen is the screen number from a ".N" suffix, 0 when absent.
	Screen int

	// Path is the Unix socket path for the display.
	Path string
}

// Resolve parses a display specifier. The specifier must contain a
// ':' followed by a non-empty identifier; the host part before the ':'
// must be empty or "unix". A trailing ".N" selects the screen and is
// not part of the socket path.
func Resolve(spec string) (Address, error) {
	host, rest, found := strings.Cut(spec, ":")
	if !found {
		return Address{}, fmt.Errorf("%w %q: missing ':'", ErrInvalidDisplay, spec)
	}
	if host != "" && host != "unix" {
		return Address{}, fmt.Errorf("%w %q: only local displays are supported", ErrInvalidDisplay, spec)
	}

	number := rest
	screen := 0
	if index := strings.LastIndexByte(rest, '.'); index >= 0 {
		parsed, err := strconv.Atoi(rest[index+1:])
		if err != nil || parsed < 0 {
			return Address{}, fmt.Errorf("%w %q: bad screen number", ErrInvalidDisplay, spec)
		}
		number = rest[:index]
		screen = parsed
	}
	if number == "" {
		return Address{}, fmt.Errorf("%w %q: empty display identifier", ErrInvalidDisplay, spec)
	}
	if strings.ContainsAny(number, "/\x00") {
		return Address{}, fmt.Errorf("%w %q: identifier contains a path separator", ErrInvalidDisplay, spec)
	}

	path := SocketDirectory + number
	if len(path) > maxPathLength {
		return Address{}, fmt.Errorf("%w %q: socket path is %d bytes, limit is %d",
			ErrInvalidDisplay, spec, len(path), maxPathLength)
	}

	return Address{
		Spec:   spec,
		Number: number,
		Screen: screen,
		Path:   path,
	}, nil
}

// FromEnvironment resolves the display named by $DISPLAY.
func FromEnvironment() (Address, error) {
	spec := os.Getenv("DISPLAY")
	if spec == "" {
		return Address{}, fmt.Errorf("%w: DISPLAY is not set", ErrInvalidDisplay)
	}
	return Resolve(spec)
}

// String returns the specifier the address was resolved from.
func (a Address) String() string {
	return a.Spec
}

// Environ returns the DISPLAY assignment that points a child process at
// this display.
func (a Address) Environ() string {
	return "DISPLAY=:" + a.Number
}

// Dial connects to the display's socket. The context bounds only the
// connect itself.
func (a Address) Dial(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	connection, err := dialer.DialContext(ctx, "unix", a.Path)
	if err != nil {
		return nil, fmt.Errorf("connecting to display %s: %w", a.Spec, err)
	}
	return connection, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidWindowID is returned by ParseWindowID.
var ErrInvalidWindowID = errors.New("invalid window id")

// ParseWindowID parses a window XID written in hexadecimal, with or
// without a single 0x or 0X prefix, as printed by xwininfo and xdotool.
func ParseWindowID(text string) (uint32, error) {
	digits := text
	if len(digits) >= 2 && strings.EqualFold(digits[:2], "0x") {
		digits = digits[2:]
	}
	if digits == "" {
		return 0, fmt.Errorf("%w %q: no hex digits", ErrInvalidWindowID, text)
	}
	value, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidWindowID, text, err)
	}
	return uint32(value), nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"errors"
	"fmt"
)

// ChecksumError is returned when a CRC or checksum embedded in a response
// doesn't match the calculated one.
type ChecksumError struct {
	Got  byte
	Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: got 0x%02X, want 0x%02X", e.Got, e.Want)
}

var (
	// ErrFrame is returned when a response has an unexpected header, length
	// or command echo.
	ErrFrame = errors.New("unexpected frame")
	// ErrNotReady is returned when the device reports it is busy, heating up
	// or otherwise has no valid measurement.
	ErrNotReady = errors.New("device not ready")
)

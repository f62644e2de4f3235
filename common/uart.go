// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"fmt"

	"periph.io/x/conn/v3"
)

// inputResetter is implemented by serial connections that can purge their
// receive buffer.
type inputResetter interface {
	ResetInputBuffer() error
}

// DrainInput discards any byte already received on c. It is a no-op when c
// doesn't support it.
func DrainInput(c conn.Conn) error {
	if r, ok := c.(inputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}

// Seek reads c one byte at a time until start is found. It gives up with
// ErrFrame after limit bytes.
func Seek(c conn.Conn, start byte, limit int) error {
	var b [1]byte
	for range limit {
		if err := c.Tx(nil, b[:]); err != nil {
			return err
		}
		if b[0] == start {
			return nil
		}
	}
	return fmt.Errorf("start byte 0x%02X not found in %d bytes: %w", start, limit, ErrFrame)
}

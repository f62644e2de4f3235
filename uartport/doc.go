// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uartport exposes host serial ports as periph.io UART ports.
//
// periph's host drivers don't enumerate serial devices on Linux, so ports
// are opened by path through go.bug.st/serial and registered into uartreg
// under a name of the caller's choosing. Device drivers then receive a
// conn.Conn from Port.Connect like with any other uart.Port.
//
// The returned connection is half duplex from the driver's point of view:
// Tx writes w then reads exactly len(r) bytes, giving up after the read
// timeout.
package uartport

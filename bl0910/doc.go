// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bl0910 controls a Belling BL0910 ten channels energy metering IC
// over a UART, 8N1.
//
// Registers are 24 bits wide. A read is the command 0x35 and the register
// address, answered by the value little endian and a checksum. A write is
// the command 0xCA, the address, the value and the checksum. Registers other
// than the write protection one are only writable once unlocked.
package bl0910

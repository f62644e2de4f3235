// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ash01ib controls an ASAIR ASH01IB humidity sensor via I²C.
//
// Every answer is a sequence of big endian 16 bits words, each followed by a
// CRC-8 (polynomial 0x31, init 0xFF).
package ash01ib

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package aox3000z01 reads an ASAIR AOX3000-Z01 fluorescence oxygen sensor.
//
// The sensor pushes one 12 bytes frame per second on a UART at 2400 bauds,
// 8N1. No command is ever sent.
package aox3000z01

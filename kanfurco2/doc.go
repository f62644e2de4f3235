// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package kanfurco2 controls a Kanfur NDIR CO2 sensor over a UART at 9600
// bauds, 8N1.
//
// Requests are framed as 0x11, length, command, data and a checksum that
// brings the sum of the frame to zero. Answers start with 0x16.
package kanfurco2

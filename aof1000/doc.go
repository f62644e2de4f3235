// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package aof1000 controls an ASAIR AOF1000 ultrasonic oxygen concentration
// and flow sensor over a UART at 9600 bauds, 8N1.
//
// The connection is obtained with
//
//	c, err := port.Connect(aof1000.Baud, uart.One, uart.NoParity, uart.NoFlow, 8)
package aof1000

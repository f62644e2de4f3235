// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package wsz controls a Dart WS-Z formaldehyde sensor over a UART at 9600
// bauds, 8N1.
//
// The sensor works either in question and answer mode, where each reading is
// requested with Sense(), or in active upload mode, where it pushes a frame
// every second that ReadActive() decodes.
package wsz

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package max30105 controls a Maxim MAX30105 particle sensing module over
// I²C.
//
// The module has red, infrared and green LEDs and a photodetector. The
// samples of the active LEDs are queued in a 32 entries FIFO; Sense()
// returns the most recent one. The die temperature and the interrupt flags
// are also exposed.
//
// # Datasheet
//
// https://datasheets.maximintegrated.com/en/ds/MAX30105.pdf
package max30105

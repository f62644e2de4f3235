// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package veml6075 controls a Vishay VEML6075 UVA and UVB light sensor over
// I²C.
//
// The raw UVA and UVB counts are compensated for the visible and infrared
// response using the two compensation channels, and combined into a UV
// index. The default coefficients are for an open air sensor with no cover
// glass.
//
// # Datasheet
//
// https://www.vishay.com/docs/84304/veml6075.pdf
package veml6075

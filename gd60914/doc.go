// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gd60914 controls a GD60914 infrared thermometer module over a UART
// at 9600 bauds, 8N1.
//
// The module answers a measurement request with the temperature in tenth of
// degree Celsius, as ASCII digits.
package gd60914

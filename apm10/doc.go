// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package apm10 controls an ASAIR APM10 laser particulate matter sensor over
// I²C.
//
// The measurement must be started with Start() before the first Sense().
package apm10

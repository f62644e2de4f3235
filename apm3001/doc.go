// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package apm3001 controls an ASAIR APM3001 laser particulate matter sensor
// over a UART at 9600 bauds, 8N1.
//
// The sensor reports PM1.0, PM2.5, PM4.0 and PM10 mass concentrations. The
// fan must be started with Start() before measurements are meaningful.
package apm3001

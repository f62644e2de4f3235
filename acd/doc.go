// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package acd provides a driver for the Aosong ACD1100 and ACD3100 NDIR CO2
// sensors and the ACD4100 R32 refrigerant sensor.
//
// All three share the same I²C command set. The ACD3100 has no calibration
// mode commands.
//
// Every response is made of 16 bits words each followed by a CRC8.
package acd

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht30 controls an ASAIR DHT30 temperature and humidity sensor over
// I²C.
//
// The dht30.Dev type implements the physic.SenseEnv interface. The pressure
// of the physic.Env measurement is never set.
package dht30

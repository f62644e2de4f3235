// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensorhub is a container for gas, particulate, humidity, power
// metering, optical and UV sensor drivers, plus the node that polls them.
//
// Each driver lives in its own package and only depends on periph.io/x/conn.
// The node in package node loads a YAML configuration, opens the buses and
// publishes decoded values to the sinks in package sink.
package sensorhub

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package afs01 controls an ASAIR AFS01 thermal mass flow sensor over I²C.
package afs01

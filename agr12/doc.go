// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package agr12 controls an ASAIR AGR12 gauge pressure sensor over I²C.
//
// The agr12.Dev type implements the physic.SenseEnv interface. Only the
// pressure is set; it is relative to the ambient pressure and can be
// negative.
package agr12

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ags controls the ASAIR AGS family of MEMS gas sensors over I²C:
// AGS2602 (TVOC), AGS2616 (hydrogen), AGS3870 (methane), AGS3871 (carbon
// monoxide) and any other part using the same register map.
//
// The sensors are slow I²C devices. The bus should run at 30kHz or less.
package ags

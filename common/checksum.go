// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

// Sum returns the 8 bits sum of b.
func Sum(b []byte) byte {
	var s byte
	for _, v := range b {
		s += v
	}
	return s
}

// Negate returns the two's complement of the sum of b. Appending it to b
// makes the sum of the whole frame zero.
func Negate(b []byte) byte {
	return -Sum(b)
}

// Xor returns the exclusive or of every byte of b.
func Xor(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}

// CheckSum returns a *ChecksumError if sum is not Sum(b).
func CheckSum(b []byte, sum byte) error {
	if want := Sum(b); want != sum {
		return &ChecksumError{Got: sum, Want: want}
	}
	return nil
}

// CheckNegate returns a *ChecksumError if sum is not Negate(b).
func CheckNegate(b []byte, sum byte) error {
	if want := Negate(b); want != sum {
		return &ChecksumError{Got: sum, Want: want}
	}
	return nil
}

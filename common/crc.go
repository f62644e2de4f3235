// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, a CRC8 calculation, the additive checksums used by UART sensors
// and the errors every driver reports.
package common

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value. CRC bytes are used in sensors from TI, Sensirion, Aosong
// and ASAIR.
func CRC8(bytes []byte) byte {
	var crc byte = 0xff
	for _, val := range bytes {
		crc ^= val
		for range 8 {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (byte)((crc << 1) ^ 0x31)
			}
		}
	}
	return crc
}

// CheckCRC8 returns a *ChecksumError if crc is not the CRC8 of b.
func CheckCRC8(b []byte, crc byte) error {
	if want := CRC8(b); want != crc {
		return &ChecksumError{Got: crc, Want: want}
	}
	return nil
}

// Words decodes a response made of big endian 16 bits words each followed by
// its CRC8.
//
// len(b) must be a multiple of 3.
func Words(b []byte) ([]uint16, error) {
	if len(b)%3 != 0 {
		return nil, ErrFrame
	}
	words := make([]uint16, len(b)/3)
	for i := range words {
		chunk := b[i*3 : i*3+3]
		if err := CheckCRC8(chunk[:2], chunk[2]); err != nil {
			return nil, err
		}
		words[i] = uint16(chunk[0])<<8 | uint16(chunk[1])
	}
	return words, nil
}

// AppendWord appends w in big endian followed by its CRC8.
func AppendWord(b []byte, w uint16) []byte {
	hi, lo := byte(w>>8), byte(w)
	return append(b, hi, lo, CRC8([]byte{hi, lo}))
}

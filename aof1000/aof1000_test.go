// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package aof1000

import (
	"errors"
	"testing"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/physic"
)

func TestSense(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			{
				W: []byte{0x11, 0x01, 0x01, 0xed},
				R: []byte{0x16, 0x09, 0x01, 0x00, 0xd1, 0x00, 0x32, 0x00, 0xfa, 0x00, 0x00, 0xe3},
			},
		},
		DontPanic: true,
	}
	dev, err := New(&c)
	if err != nil {
		t.Fatal(err)
	}
	e := Env{}
	if err := dev.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if e.O2 != 209 || e.O2.String() != "20.9" {
		t.Errorf("O2 %s", e.O2)
	}
	if e.Flow.Float64() != 5 {
		t.Errorf("flow %s", e.Flow)
	}
	if expected := physic.ZeroCelsius + 25*physic.Celsius; e.Temperature != expected {
		t.Errorf("temperature %s != %s", e.Temperature, expected)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSenseErrors(t *testing.T) {
	var tests = []struct {
		name  string
		r     []byte
		check func(error) bool
	}{
		{
			"header",
			[]byte{0x16, 0x08, 0x01, 0x00, 0xd1, 0x00, 0x32, 0x00, 0xfa, 0x00, 0x00, 0xe4},
			func(err error) bool { return errors.Is(err, common.ErrFrame) },
		},
		{
			"tail",
			[]byte{0x16, 0x09, 0x01, 0x00, 0xd1, 0x00, 0x32, 0x00, 0xfa, 0x01, 0x00, 0xe2},
			func(err error) bool { return errors.Is(err, common.ErrFrame) },
		},
		{
			"checksum",
			[]byte{0x16, 0x09, 0x01, 0x00, 0xd1, 0x00, 0x32, 0x00, 0xfa, 0x00, 0x00, 0xe4},
			func(err error) bool {
				var ce *common.ChecksumError
				return errors.As(err, &ce)
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := conntest.Playback{
				Ops:       []conntest.IO{{W: []byte{0x11, 0x01, 0x01, 0xed}, R: test.r}},
				DontPanic: true,
			}
			dev, _ := New(&c)
			e := Env{O2: 1}
			if err := dev.Sense(&e); !test.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if e.O2 != 1 {
				t.Fatal("reading modified on error")
			}
		})
	}
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package apm3001

import (
	"errors"
	"testing"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/conntest"
)

func TestSense(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			{
				W: []byte{0xfe, 0xa5, 0x00, 0x11, 0xb6},
				R: []byte{0xfe, 0xa5, 0x02, 0x00, 0x00, 0x11, 0xb8},
			},
			{
				W: []byte{0xfe, 0xa5, 0x00, 0x07, 0xac},
				R: []byte{0xfe, 0xa5, 0x08, 0x07, 0x00, 0x0c, 0x00, 0x19, 0x00, 0x1e, 0x00, 0x29, 0x20},
			},
			{
				W: []byte{0xfe, 0xa5, 0x00, 0x10, 0xb5},
				R: []byte{0xfe, 0xa5, 0x02, 0x00, 0x00, 0x10, 0xb7},
			},
		},
		DontPanic: true,
	}
	dev, err := New(&c)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	e := Env{}
	if err := dev.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if e.PM1_0 != 12 || e.PM2_5 != 25 || e.PM4_0 != 30 || e.PM10 != 41 {
		t.Fatalf("unexpected %s", e.String())
	}
	if s := e.PM2_5.String(); s != "25µg/m³" {
		t.Fatal(s)
	}
	if err := dev.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSenseChecksum(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			{
				W: []byte{0xfe, 0xa5, 0x00, 0x07, 0xac},
				R: []byte{0xfe, 0xa5, 0x08, 0x07, 0x00, 0x0c, 0x00, 0x19, 0x00, 0x1e, 0x00, 0x29, 0x21},
			},
		},
		DontPanic: true,
	}
	dev, _ := New(&c)
	var ce *common.ChecksumError
	if err := dev.Sense(&Env{}); !errors.As(err, &ce) {
		t.Fatalf("expected ChecksumError, got %v", err)
	} else if ce.Got != 0x21 || ce.Want != 0x20 {
		t.Fatalf("unexpected %v", ce)
	}
}

func TestStartBadEcho(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			{
				W: []byte{0xfe, 0xa5, 0x00, 0x11, 0xb6},
				R: []byte{0xfe, 0xa5, 0x02, 0x00, 0x00, 0x10, 0xb7},
			},
		},
		DontPanic: true,
	}
	dev, _ := New(&c)
	if err := dev.Start(); !errors.Is(err, common.ErrFrame) {
		t.Fatalf("expected ErrFrame, got %v", err)
	}
}

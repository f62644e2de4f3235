// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package aox3000z01

import (
	"errors"
	"testing"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/conntest"
)

func TestSense(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			// Tail of a previous frame.
			{R: []byte{0x00}},
			{R: []byte{0xae}},
			{R: []byte{0x78}},
			{R: []byte{0x09, 0x00, 0xd1, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xae}},
		},
		DontPanic: true,
	}
	dev, err := New(&c)
	if err != nil {
		t.Fatal(err)
	}
	var o O2
	if err := dev.Sense(&o); err != nil {
		t.Fatal(err)
	}
	if o.String() != "20.9%" {
		t.Fatalf("O2 %s", o)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSenseHeating(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			{R: []byte{0x78}},
			{R: []byte{0x09, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x7d}},
		},
		DontPanic: true,
	}
	dev, _ := New(&c)
	o := O2(1)
	err := dev.Sense(&o)
	if !errors.Is(err, common.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != StatusHeating {
		t.Fatalf("expected heating status, got %v", err)
	}
	if o != 1 {
		t.Fatal("reading modified on error")
	}
}

func TestSenseChecksum(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			{R: []byte{0x78}},
			{R: []byte{0x09, 0x00, 0xd1, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xaf}},
		},
		DontPanic: true,
	}
	dev, _ := New(&c)
	var o O2
	var ce *common.ChecksumError
	if err := dev.Sense(&o); !errors.As(err, &ce) {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
}

func TestSenseNoFrame(t *testing.T) {
	ops := make([]conntest.IO, seekLimit)
	for i := range ops {
		ops[i].R = []byte{0x55}
	}
	c := conntest.Playback{Ops: ops, DontPanic: true}
	dev, _ := New(&c)
	var o O2
	if err := dev.Sense(&o); !errors.Is(err, common.ErrFrame) {
		t.Fatalf("expected ErrFrame, got %v", err)
	}
}

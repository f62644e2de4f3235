// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht30

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestDev_Sense(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddress, W: []byte{0xac, 0x33, 0x00}},
			{Addr: DefaultAddress, R: []byte{0x18, 0x75, 0x52, 0x05, 0x8e, 0x40, 0x7f}},
		},
	}
	dev, err := NewI2C(&bus, DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	e := physic.Env{}
	if err := dev.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if expected := 19445800781*physic.NanoKelvin + physic.ZeroCelsius; e.Temperature != expected {
		t.Fatalf("temperature %s(%d) != %s(%d)", expected, expected, e.Temperature, e.Temperature)
	}
	if expected := 4582824 * physic.TenthMicroRH; e.Humidity != expected {
		t.Fatalf("humidity %s(%d) != %s(%d)", expected, expected, e.Humidity, e.Humidity)
	}
	if e.Pressure != 0 {
		t.Fatalf("pressure %s", e.Pressure)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDev_Sense_busy(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddress, W: []byte{0xac, 0x33, 0x00}},
			{Addr: DefaultAddress, R: []byte{0x98, 0x75, 0x52, 0x05, 0x8e, 0x40, 0x93}},
		},
		DontPanic: true,
	}
	dev, _ := NewI2C(&bus, DefaultAddress, &Opts{})
	if err := dev.Sense(&physic.Env{}); !errors.Is(err, common.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestDev_Sense_retry(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddress, W: []byte{0xac, 0x33, 0x00}},
			{Addr: DefaultAddress, R: []byte{0x98, 0x75, 0x52, 0x05, 0x8e, 0x40, 0x93}},
			{Addr: DefaultAddress, R: []byte{0x18, 0x75, 0x52, 0x05, 0x8e, 0x40, 0x7f}},
		},
	}
	dev, _ := NewI2C(&bus, DefaultAddress, &Opts{ReadTimeout: time.Second, WaitInterval: time.Millisecond})
	e := physic.Env{}
	if err := dev.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if e.Humidity != 4582824*physic.TenthMicroRH {
		t.Fatal(e.Humidity)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDev_Sense_errors(t *testing.T) {
	var tests = []struct {
		name  string
		r     []byte
		check func(error) bool
	}{
		{
			"comparator",
			[]byte{0x1c, 0x75, 0x52, 0x05, 0x8e, 0x40, 0x12},
			func(err error) bool { return errors.Is(err, common.ErrNotReady) },
		},
		{
			"crc",
			[]byte{0x18, 0x75, 0x52, 0x05, 0x8e, 0x40, 0x7e},
			func(err error) bool {
				var ce *common.ChecksumError
				return errors.As(err, &ce)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := i2ctest.Playback{
				Ops: []i2ctest.IO{
					{Addr: DefaultAddress, W: []byte{0xac, 0x33, 0x00}},
					{Addr: DefaultAddress, R: tt.r},
				},
				DontPanic: true,
			}
			dev, _ := NewI2C(&bus, DefaultAddress, nil)
			if err := dev.Sense(&physic.Env{}); !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

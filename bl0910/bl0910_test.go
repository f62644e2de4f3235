// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bl0910

import (
	"errors"
	"math"
	"testing"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/conntest"
)

func readOp(reg byte, v uint32) conntest.IO {
	l, m, h := byte(v), byte(v>>8), byte(v>>16)
	return conntest.IO{W: []byte{0x35, reg}, R: []byte{l, m, h, (reg + l + m + h) ^ 0xff}}
}

func writeOp(reg byte, v uint32) conntest.IO {
	l, m, h := byte(v), byte(v>>8), byte(v>>16)
	return conntest.IO{W: []byte{0xca, reg, l, m, h, (reg + l + m + h) ^ 0xff}}
}

func initOps() []conntest.IO {
	ops := []conntest.IO{
		{W: []byte{0xca, 0x9f, 0x5a, 0x5a, 0x5a, 0x52}},
		{W: []byte{0xca, 0x9e, 0x55, 0x55, 0x00, 0xb7}},
	}
	for reg := byte(0x77); reg <= 0x80; reg++ {
		ops = append(ops, writeOp(reg, 0))
	}
	for reg := byte(0x6c); reg <= 0x75; reg++ {
		ops = append(ops, writeOp(reg, 0))
	}
	return ops
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func TestNew(t *testing.T) {
	ops := initOps()
	// Zero offset frame of the first channel.
	if w := ops[2].W; w[1] != 0x77 || w[5] != 0x88 {
		t.Fatalf("% X", w)
	}
	c := conntest.Playback{Ops: append(ops, conntest.IO{W: []byte{0xca, 0x9e, 0x00, 0x00, 0x00, 0x61}}), DontPanic: true}
	dev, err := New(&c)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Lock(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSense(t *testing.T) {
	ops := initOps()
	ops = append(ops, readOp(0x5e, 300))
	for i := byte(0); i < Channels; i++ {
		switch i {
		case 0:
			ops = append(ops, readOp(0x0c, 1000000), readOp(0x22, 0xffff38), readOp(0x2f, 5000))
		case 1:
			bad := readOp(0x0d, 1000)
			bad.R[3]++
			ops = append(ops, bad, readOp(0x23, 0), readOp(0x30, 0))
		default:
			ops = append(ops, readOp(0x0c+i, 0), readOp(0x22+i, 0), readOp(0x2f+i, 0))
		}
	}
	ops = append(ops,
		readOp(0x4e, 200000),
		readOp(0x16, 2400000),
		readOp(0x2c, 1000),
		readOp(0x39, 10),
	)
	c := conntest.Playback{Ops: ops, DontPanic: true}
	dev, err := New(&c)
	if err != nil {
		t.Fatal(err)
	}
	e := Env{}
	err = dev.Sense(&e)
	var ce *common.ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
	if e.Temperature != 10 {
		t.Errorf("temperature %g", e.Temperature)
	}
	if e.Frequency != 50 {
		t.Errorf("frequency %g", e.Frequency)
	}
	if !near(e.Voltage, 200.03039051815836) {
		t.Errorf("voltage %g", e.Voltage)
	}
	if !near(e.TotalPower, 93.42140120971523) {
		t.Errorf("total power %g", e.TotalPower)
	}
	if !near(e.TotalEnergy, 0.035666022801900295) {
		t.Errorf("total energy %g", e.TotalEnergy)
	}
	ch := e.Channels[0]
	if !near(ch.Current, 16.706643822577576) || !near(ch.Power, -1.1677675151214404) || !near(ch.Energy, 1.1145632125593843) {
		t.Errorf("channel 1 %+v", ch)
	}
	if !near(ch.PowerFactor, -0.0003494388547397399) {
		t.Errorf("power factor %g", ch.PowerFactor)
	}
	if ch := e.Channels[1]; !math.IsNaN(ch.Current) || !math.IsNaN(ch.PowerFactor) || ch.Power != 0 {
		t.Errorf("channel 2 %+v", ch)
	}
	if ch := e.Channels[2]; ch.Current != 0 || !math.IsNaN(ch.PowerFactor) {
		t.Errorf("channel 3 %+v", ch)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCorrection(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			// (1.1/1 - 1) * 65536 = 6553
			writeOp(0x6d, 6553),
			// -1 as 24 bits
			writeOp(0x77, 0xffffff),
		},
		DontPanic: true,
	}
	dev := &Dev{c: &c}
	if err := dev.GainCorrection(2, 1, 1.1); err != nil {
		t.Fatal(err)
	}
	if err := dev.Write(0x77, 0xffffffff); err != nil {
		t.Fatal(err)
	}
	if err := dev.GainCorrection(11, 1, 1); err == nil {
		t.Fatal("expected error")
	}
	if err := dev.BiasCorrection(0, 1, 1); err == nil {
		t.Fatal("expected error")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestInt24(t *testing.T) {
	var tests = []struct {
		raw  uint32
		want int32
	}{
		{0, 0},
		{0x7fffff, 8388607},
		{0x800000, -8388608},
		{0xffff38, -200},
	}
	for _, tt := range tests {
		if got := int24(tt.raw); got != tt.want {
			t.Errorf("int24(%#x) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package aof1000

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Baud is the line speed of the sensor.
const Baud = 9600 * physic.Hertz

var cmdRead = []byte{0x11, 0x01, 0x01, 0xed}

// Tenth is a fixed point value with one decimal.
type Tenth uint16

// Float64 returns the value as a floating point number.
func (t Tenth) Float64() float64 {
	return float64(t) / 10
}

func (t Tenth) String() string {
	return strconv.FormatFloat(t.Float64(), 'f', 1, 64)
}

// Env is a reading.
type Env struct {
	// O2 is the oxygen concentration in %.
	O2 Tenth
	// Flow is the volume flow rate in L/min.
	Flow        Tenth
	Temperature physic.Temperature
}

func (e *Env) String() string {
	return fmt.Sprintf("O2: %s%% Flow: %sL/min Temperature: %s", e.O2, e.Flow, e.Temperature)
}

// Dev is a handle to an AOF1000.
type Dev struct {
	c    conn.Conn
	mu   sync.Mutex
	stop chan struct{}
}

// New returns a handle to an AOF1000 connected on c.
func New(c conn.Conn) (*Dev, error) {
	return &Dev{c: c}, nil
}

func (d *Dev) String() string {
	return "aof1000: " + d.c.String()
}

// Sense requests and decodes one measurement.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.DrainInput(d.c); err != nil {
		return fmt.Errorf("aof1000: %w", err)
	}
	var r [12]byte
	if err := d.c.Tx(cmdRead, r[:]); err != nil {
		return fmt.Errorf("aof1000: %w", err)
	}
	if r[0] != 0x16 || r[1] != 0x09 || r[2] != 0x01 {
		return fmt.Errorf("aof1000: header % X: %w", r[:3], common.ErrFrame)
	}
	if r[9] != 0 || r[10] != 0 {
		return fmt.Errorf("aof1000: tail % X: %w", r[9:11], common.ErrFrame)
	}
	if err := common.CheckNegate(r[:11], r[11]); err != nil {
		return fmt.Errorf("aof1000: %w", err)
	}
	e.O2 = Tenth(uint16(r[3])<<8 | uint16(r[4]))
	e.Flow = Tenth(uint16(r[5])<<8 | uint16(r[6]))
	t := uint16(r[7])<<8 | uint16(r[8])
	e.Temperature = physic.ZeroCelsius + physic.Temperature(t)*100*physic.MilliCelsius
	return nil
}

// SenseContinuous reads the sensor every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("aof1000: SenseContinuous() running already")
	}
	d.stop = make(chan struct{})
	return common.SenseEvery(interval, d.stop, d.Sense), nil
}

// Halt stops a running SenseContinuous.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	return nil
}

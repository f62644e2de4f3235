// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package apm3001

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Baud is the line speed of the sensor.
const Baud = 9600 * physic.Hertz

var (
	cmdStart = []byte{0xfe, 0xa5, 0x00, 0x11, 0xb6}
	cmdStop  = []byte{0xfe, 0xa5, 0x00, 0x10, 0xb5}
	cmdRead  = []byte{0xfe, 0xa5, 0x00, 0x07, 0xac}
)

// MassConcentration is a particulate mass concentration in µg/m³.
type MassConcentration uint16

func (m MassConcentration) String() string {
	return fmt.Sprintf("%dµg/m³", uint16(m))
}

// Env is a reading.
type Env struct {
	PM1_0 MassConcentration
	PM2_5 MassConcentration
	PM4_0 MassConcentration
	PM10  MassConcentration
}

func (e *Env) String() string {
	return fmt.Sprintf("PM1.0: %s PM2.5: %s PM4.0: %s PM10: %s", e.PM1_0, e.PM2_5, e.PM4_0, e.PM10)
}

// Dev is a handle to an APM3001.
type Dev struct {
	c    conn.Conn
	mu   sync.Mutex
	stop chan struct{}
}

// New returns a handle to an APM3001 connected on c.
//
// It doesn't start the fan.
func New(c conn.Conn) (*Dev, error) {
	return &Dev{c: c}, nil
}

func (d *Dev) String() string {
	return "apm3001: " + d.c.String()
}

// Start starts the fan and the measurement.
func (d *Dev) Start() error {
	return d.control(cmdStart)
}

// Stop stops the fan and the measurement.
func (d *Dev) Stop() error {
	return d.control(cmdStop)
}

// Sense reads the mass concentrations.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.DrainInput(d.c); err != nil {
		return fmt.Errorf("apm3001: %w", err)
	}
	var r [13]byte
	if err := d.c.Tx(cmdRead, r[:]); err != nil {
		return fmt.Errorf("apm3001: %w", err)
	}
	if err := common.CheckSum(r[1:12], r[12]); err != nil {
		return fmt.Errorf("apm3001: %w", err)
	}
	e.PM1_0 = MassConcentration(uint16(r[4])<<8 | uint16(r[5]))
	e.PM2_5 = MassConcentration(uint16(r[6])<<8 | uint16(r[7]))
	e.PM4_0 = MassConcentration(uint16(r[8])<<8 | uint16(r[9]))
	e.PM10 = MassConcentration(uint16(r[10])<<8 | uint16(r[11]))
	return nil
}

// SenseContinuous reads the sensor every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("apm3001: SenseContinuous() running already")
	}
	d.stop = make(chan struct{})
	return common.SenseEvery(interval, d.stop, d.Sense), nil
}

// Halt stops a running SenseContinuous. It doesn't stop the fan.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	return nil
}

// control sends a start or stop command and checks the echo.
func (d *Dev) control(cmd []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.DrainInput(d.c); err != nil {
		return fmt.Errorf("apm3001: %w", err)
	}
	var r [7]byte
	if err := d.c.Tx(cmd, r[:]); err != nil {
		return fmt.Errorf("apm3001 cmd 0x%02X: %w", cmd[3], err)
	}
	if err := common.CheckSum(r[1:6], r[6]); err != nil {
		return fmt.Errorf("apm3001 cmd 0x%02X: %w", cmd[3], err)
	}
	if r[2] != 0x02 || r[3] != 0 || r[4] != 0 || r[5] != cmd[3] {
		return fmt.Errorf("apm3001 cmd 0x%02X: answer % X: %w", cmd[3], r[2:6], common.ErrFrame)
	}
	return nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package apm10

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddress is the factory I²C address.
const DefaultAddress uint16 = 0x08

var (
	cmdStart = []byte{0x00, 0x10, 0x05, 0x00, 0xf6}
	cmdStop  = []byte{0x01, 0x04}
	cmdRead  = []byte{0x03, 0x00}
)

// readLength is the size of the measurement frame: 10 words and their CRC.
const readLength = 30

// MassConcentration is a particulate mass concentration in µg/m³.
type MassConcentration uint16

func (m MassConcentration) String() string {
	return fmt.Sprintf("%dµg/m³", uint16(m))
}

// Env is a reading.
type Env struct {
	PM1_0 MassConcentration
	PM2_5 MassConcentration
	PM10  MassConcentration
}

func (e *Env) String() string {
	return fmt.Sprintf("PM1.0: %s PM2.5: %s PM10: %s", e.PM1_0, e.PM2_5, e.PM10)
}

// Dev is a handle to an APM10.
type Dev struct {
	d    *i2c.Dev
	mu   sync.Mutex
	stop chan struct{}
}

// NewI2C returns a handle to an APM10 on the bus.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

func (d *Dev) String() string {
	return "apm10: " + d.d.String()
}

// Start starts the fan and the measurement.
func (d *Dev) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx(cmdStart, nil); err != nil {
		return fmt.Errorf("apm10 start: %w", err)
	}
	return nil
}

// Stop stops the fan and the measurement.
func (d *Dev) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx(cmdStop, nil); err != nil {
		return fmt.Errorf("apm10 stop: %w", err)
	}
	return nil
}

// Sense reads the mass concentrations.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx(cmdRead, nil); err != nil {
		return fmt.Errorf("apm10 read: %w", err)
	}
	r := make([]byte, readLength)
	if err := d.d.Tx(nil, r); err != nil {
		return fmt.Errorf("apm10 read: %w", err)
	}
	// Only the first four words are documented.
	w, err := common.Words(r[:12])
	if err != nil {
		return fmt.Errorf("apm10 read: %w", err)
	}
	e.PM1_0 = MassConcentration(w[0])
	e.PM2_5 = MassConcentration(w[1])
	e.PM10 = MassConcentration(w[3])
	return nil
}

// SenseContinuous reads the sensor every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("apm10: SenseContinuous() running already")
	}
	d.stop = make(chan struct{})
	return common.SenseEvery(interval, d.stop, d.Sense), nil
}

// Halt stops a running SenseContinuous. It doesn't stop the fan, use Stop()
// for that.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	return nil
}

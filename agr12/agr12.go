// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package agr12

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the factory I²C address.
const DefaultAddress uint16 = 0x50

var cmdRead = []byte{0xac, 0x12}

// Dev is a handle to an AGR12.
type Dev struct {
	d    *i2c.Dev
	mu   sync.Mutex
	stop chan struct{}
}

// NewI2C returns a handle to an AGR12 on the bus.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

func (d *Dev) String() string {
	return "agr12: " + d.d.String()
}

// Sense implements physic.SenseEnv. Only the pressure is set.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx(cmdRead, nil); err != nil {
		return fmt.Errorf("agr12: %w", err)
	}
	// Conversion time.
	time.Sleep(80 * time.Millisecond)
	var r [3]byte
	if err := d.d.Tx(nil, r[:]); err != nil {
		return fmt.Errorf("agr12: %w", err)
	}
	if want := common.Xor(r[:2]); want != r[2] {
		return fmt.Errorf("agr12: %w", &common.ChecksumError{Got: r[2], Want: want})
	}
	e.Pressure = countToPressure(uint16(r[0])<<8 | uint16(r[1]))
	return nil
}

// SenseContinuous implements physic.SenseEnv.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("agr12: SenseContinuous() running already")
	}
	d.stop = make(chan struct{})
	return common.SenseEvery(interval, d.stop, d.Sense), nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Pressure = 100 * physic.Pascal
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	return nil
}

// countToPressure converts the raw count in 0.1kPa. Bit 15 flags a negative
// pressure.
func countToPressure(raw uint16) physic.Pressure {
	v := int64(raw)
	if raw&0x8000 != 0 {
		v = int64(raw&0x7fff) - 32768
	}
	return physic.Pressure(v) * 100 * physic.Pascal
}

var _ physic.SenseEnv = &Dev{}

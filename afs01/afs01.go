// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package afs01

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddress is the factory I²C address.
const DefaultAddress uint16 = 0x40

var (
	cmdData = []byte{0x10, 0x00}
	cmdID   = []byte{0x31, 0xae}
)

// CCM is a volume flow rate in cubic centimetres per minute.
type CCM int

func (c CCM) String() string {
	return fmt.Sprintf("%d cm³/min", int(c))
}

// Dev is a handle to an AFS01.
type Dev struct {
	d    *i2c.Dev
	mu   sync.Mutex
	stop chan struct{}
}

// NewI2C returns a handle to an AFS01 on the bus.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

func (d *Dev) String() string {
	return "afs01: " + d.d.String()
}

// Sense reads the volume flow rate.
func (d *Dev) Sense(f *CCM) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.query(cmdData, 1)
	if err != nil {
		return err
	}
	*f = CCM(w[0])
	return nil
}

// SenseContinuous reads the flow every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan CCM, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("afs01: SenseContinuous() running already")
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

// UniqueID returns the 32 bits identifier of the sensor.
func (d *Dev) UniqueID() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.query(cmdID, 2)
	if err != nil {
		return 0, err
	}
	return uint32(w[0])<<16 | uint32(w[1]), nil
}

func (d *Dev) query(cmd []byte, words int) ([]uint16, error) {
	if err := d.d.Tx(cmd, nil); err != nil {
		return nil, fmt.Errorf("afs01 cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	r := make([]byte, 3*words)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("afs01 cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	w, err := common.Words(r)
	if err != nil {
		return nil, fmt.Errorf("afs01 cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	return w, nil
}

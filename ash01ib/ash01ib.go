// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ash01ib

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
const DefaultAddress uint16 = 0x15

var (
	cmdData             = []byte{0x00, 0x02}
	cmdStart            = []byte{0x06, 0x01}
	cmdStop             = []byte{0x07, 0x01}
	cmdStartCalibration = []byte{0x06, 0x17}
	cmdStopCalibration  = []byte{0x07, 0x17}
	cmdSerial           = []byte{0x08, 0x02}
	cmdVersion          = []byte{0x0a, 0x01}
	cmdUniqueID         = []byte{0x0b, 0x04}
	cmdState            = []byte{0x0f, 0x02}
)

// State is the measurement state reported by the sensor.
type State uint8

const (
	Waiting State = iota
	OK
	Error
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case OK:
		return "ok"
	default:
		return "error"
	}
}

// Dev is a handle to an ASH01IB.
type Dev struct {
	d    *i2c.Dev
	mu   sync.Mutex
	stop chan struct{}
}

// NewI2C returns a handle to an ASH01IB on the bus.
//
// It doesn't start the measurement, call Start() for that.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}, nil
}

func (d *Dev) String() string {
	return "ash01ib: " + d.d.String()
}

// Sense reads the relative humidity.
//
// h is left untouched on a CRC mismatch or when the reading is above 100%rH,
// which is reported as common.ErrFrame.
func (d *Dev) Sense(h *physic.RelativeHumidity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.query(cmdData, 3)
	if err != nil {
		return err
	}
	v := uint16(w[0])<<8 | uint16(w[1])
	if v > 100 {
		return fmt.Errorf("ash01ib: humidity %d%%: %w", v, common.ErrFrame)
	}
	*h = physic.RelativeHumidity(v) * physic.PercentRH
	return nil
}

// SenseContinuous reads the humidity every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.RelativeHumidity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("ash01ib: SenseContinuous() running already")
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

// Start starts the periodic measurement.
func (d *Dev) Start() error {
	return d.command(cmdStart)
}

// Stop stops the periodic measurement.
func (d *Dev) Stop() error {
	return d.command(cmdStop)
}

// StartCalibration enters the calibration mode.
func (d *Dev) StartCalibration() error {
	return d.command(cmdStartCalibration)
}

// StopCalibration leaves the calibration mode.
func (d *Dev) StopCalibration() error {
	return d.command(cmdStopCalibration)
}

// State returns the measurement state. A CRC mismatch is reported as Error
// along with the checksum error.
func (d *Dev) State() (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.query(cmdState, 3)
	if err != nil {
		return Error, err
	}
	switch r[0] & 0xc0 {
	case 0x00:
		return Waiting, nil
	case 0x40:
		return OK, nil
	default:
		return Error, nil
	}
}

// SerialNumber returns the 16 bits serial number.
func (d *Dev) SerialNumber() (uint16, error) {
	return d.word(cmdSerial)
}

// Version returns the firmware version.
func (d *Dev) Version() (uint16, error) {
	return d.word(cmdVersion)
}

// UniqueID returns the 32 bits identifier of the sensor.
func (d *Dev) UniqueID() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.query(cmdUniqueID, 5)
	if err != nil {
		return 0, err
	}
	return uint32(r[0])<<24 | uint32(r[1])<<16 | uint32(r[2])<<8 | uint32(r[3]), nil
}

func (d *Dev) word(cmd []byte) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.query(cmd, 3)
	if err != nil {
		return 0, err
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

func (d *Dev) command(cmd []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx(cmd, nil); err != nil {
		return fmt.Errorf("ash01ib cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	return nil
}

// query sends cmd and reads n bytes. The last byte is the CRC of the others.
func (d *Dev) query(cmd []byte, n int) ([]byte, error) {
	if err := d.d.Tx(cmd, nil); err != nil {
		return nil, fmt.Errorf("ash01ib cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	r := make([]byte, n)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("ash01ib cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	if err := common.CheckCRC8(r[:n-1], r[n-1]); err != nil {
		return nil, fmt.Errorf("ash01ib cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	return r, nil
}

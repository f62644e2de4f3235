// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package acd

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// PPM=Parts Per Million. Units of measure for the gas concentration.
type PPM int

func (ppm PPM) String() string {
	return fmt.Sprintf("%d PPM", int(ppm))
}

// Variant is the sensor model.
type Variant int

const (
	ACD1100 Variant = iota
	ACD3100
	ACD4100
)

func (v Variant) String() string {
	switch v {
	case ACD1100:
		return "ACD1100"
	case ACD3100:
		return "ACD3100"
	case ACD4100:
		return "ACD4100"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// SensorAddress is the only address these devices answer to.
const SensorAddress uint16 = 0x2a

var (
	cmdRead            = []byte{0x03, 0x00}
	cmdCalibrationMode = []byte{0x53, 0x06}
	cmdCalibration     = []byte{0x52, 0x04}
	cmdReset           = []byte{0x52, 0x02}
	cmdVersion         = []byte{0xd1, 0x00}
	cmdSerialNumber    = []byte{0xd2, 0x01}
)

// ErrUnsupported is returned by the calibration mode commands on an ACD3100.
var ErrUnsupported = errors.New("acd: command not supported by this variant")

// Env is a reading: the gas concentration and the sensor temperature. The
// temperature has a 1°C resolution.
type Env struct {
	Concentration PPM
	Temperature   physic.Temperature
}

func (e *Env) String() string {
	return fmt.Sprintf("Concentration: %s Temperature: %s", e.Concentration, e.Temperature)
}

// Dev represents an ACD device.
type Dev struct {
	d       *i2c.Dev
	variant Variant
	mu      sync.Mutex
	stop    chan struct{}
}

// NewI2C returns a device communicating over I²C. SensorAddress should be
// used for addr.
func NewI2C(b i2c.Bus, addr uint16, variant Variant) (*Dev, error) {
	if variant < ACD1100 || variant > ACD4100 {
		return nil, fmt.Errorf("acd: invalid variant %d", variant)
	}
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, variant: variant}, nil
}

func (d *Dev) String() string {
	return d.variant.String() + ": " + d.d.String()
}

// Variant returns the sensor model.
func (d *Dev) Variant() Variant {
	return d.variant
}

// Sense reads the gas concentration and the temperature.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.query(cmdRead, 3)
	if err != nil {
		return err
	}
	e.Concentration = PPM(uint32(w[0])<<16 | uint32(w[1]))
	e.Temperature = physic.ZeroCelsius + physic.Temperature(int16(w[2]))*physic.Celsius
	return nil
}

// SenseContinuous reads the sensor every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("acd: SenseContinuous() running already")
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

// SetCalibrationMode selects automatic (true) or manual (false)
// calibration.
func (d *Dev) SetCalibrationMode(auto bool) error {
	if d.variant == ACD3100 {
		return ErrUnsupported
	}
	var v uint16
	if auto {
		v = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(frame(cmdCalibrationMode, v))
}

// CalibrationMode returns true when automatic calibration is enabled.
func (d *Dev) CalibrationMode() (bool, error) {
	if d.variant == ACD3100 {
		return false, ErrUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.query(cmdCalibrationMode, 1)
	if err != nil {
		return false, err
	}
	return w[0] != 0, nil
}

// Calibrate sets the concentration of the reference gas the sensor is
// currently exposed to.
func (d *Dev) Calibrate(target PPM) error {
	if target < 0 || target > 0xffff {
		return fmt.Errorf("acd: calibration target %s out of range", target)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(frame(cmdCalibration, uint16(target)))
}

// CalibrationTarget returns the current calibration base value.
func (d *Dev) CalibrationTarget() (PPM, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.query(cmdCalibration, 1)
	if err != nil {
		return 0, err
	}
	return PPM(w[0]), nil
}

// Reset restores the factory settings.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(append(bytes.Clone(cmdReset), 0x00)); err != nil {
		return err
	}
	w, err := d.query(cmdReset, 1)
	if err != nil {
		return err
	}
	if w[0]&0xff != 0x01 {
		return fmt.Errorf("acd: reset answered 0x%04X: %w", w[0], common.ErrFrame)
	}
	return nil
}

// FirmwareVersion returns the firmware version string.
func (d *Dev) FirmwareVersion() (string, error) {
	return d.text(cmdVersion)
}

// SerialNumber returns the serial number string.
func (d *Dev) SerialNumber() (string, error) {
	return d.text(cmdSerialNumber)
}

func (d *Dev) text(cmd []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(cmd); err != nil {
		return "", err
	}
	b := make([]byte, 10)
	if err := d.d.Tx(nil, b); err != nil {
		return "", fmt.Errorf("acd cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

// frame builds a write command. Unlike the responses, the CRC covers the
// command bytes too.
func frame(cmd []byte, v uint16) []byte {
	b := append(bytes.Clone(cmd), byte(v>>8), byte(v))
	return append(b, common.CRC8(b))
}

func (d *Dev) write(w []byte) error {
	if err := d.d.Tx(w, nil); err != nil {
		return fmt.Errorf("acd cmd 0x%02X%02X: %w", w[0], w[1], err)
	}
	return nil
}

// query sends cmd then reads n CRC protected words in a second transaction.
func (d *Dev) query(cmd []byte, n int) ([]uint16, error) {
	if err := d.write(cmd); err != nil {
		return nil, err
	}
	r := make([]byte, n*3)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("acd cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	w, err := common.Words(r)
	if err != nil {
		return nil, fmt.Errorf("acd cmd 0x%02X%02X: %w", cmd[0], cmd[1], err)
	}
	return w, nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ags

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the factory I²C address of every part of the family.
const DefaultAddress uint16 = 0x1a

const (
	regData        byte = 0x00
	regCalibrate   byte = 0x01
	regVersion     byte = 0x11
	regResistance  byte = 0x20
	statusNotReady byte = 1 << 0
)

// Variant is the part number. It selects the gas and its unit.
type Variant int

const (
	Generic Variant = iota
	AGS2602
	AGS2616
	AGS3870
	AGS3871
)

func (v Variant) String() string {
	switch v {
	case Generic:
		return "AGSxxxx"
	case AGS2602:
		return "AGS2602"
	case AGS2616:
		return "AGS2616"
	case AGS3870:
		return "AGS3870"
	case AGS3871:
		return "AGS3871"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Gas returns the name of the gas measured by the variant.
func (v Variant) Gas() string {
	switch v {
	case AGS2602:
		return "tvoc"
	case AGS2616:
		return "hydrogen"
	case AGS3870:
		return "methane"
	case AGS3871:
		return "carbon_monoxide"
	default:
		return "gas"
	}
}

// Unit returns the unit of the concentration reported by the variant. The
// AGS2602 reports ppb, the others ppm.
func (v Variant) Unit() string {
	if v == AGS2602 {
		return "ppb"
	}
	return "ppm"
}

// Calibration values accepted by Calibrate.
const (
	ZeroCalibration  uint16 = 0xffff
	ResetCalibration uint16 = 0x0000
)

// Dev is a handle to an AGS gas sensor.
type Dev struct {
	d       *i2c.Dev
	variant Variant
	mu      sync.Mutex
	stop    chan struct{}
}

// NewI2C returns a handle to an AGS sensor on the bus.
func NewI2C(b i2c.Bus, addr uint16, variant Variant) (*Dev, error) {
	if variant < Generic || variant > AGS3871 {
		return nil, fmt.Errorf("ags: invalid variant %d", variant)
	}
	return &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, variant: variant}, nil
}

func (d *Dev) String() string {
	return d.variant.String() + ": " + d.d.String()
}

// Variant returns the part number.
func (d *Dev) Variant() Variant {
	return d.variant
}

// Sense returns the gas concentration in the variant's Unit.
//
// It returns common.ErrNotReady while the sensor is preheating.
func (d *Dev) Sense(c *uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.readRegister(regData)
	if err != nil {
		return err
	}
	if r[0]&statusNotReady != 0 {
		return fmt.Errorf("ags: %w", common.ErrNotReady)
	}
	*c = uint32(r[1])<<16 | uint32(r[2])<<8 | uint32(r[3])
	return nil
}

// SenseContinuous reads the concentration every interval until Halt() is
// called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("ags: SenseContinuous() running already")
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

// Resistance returns the resistance of the sensing element.
//
// physic.ElectricResistance tops out at about 9.2GΩ while the sensor reports
// up to 429GΩ; larger values saturate at math.MaxInt64. Use RawResistance
// for the full range.
func (d *Dev) Resistance() (physic.ElectricResistance, error) {
	v, err := d.RawResistance()
	if err != nil {
		return 0, err
	}
	if uint64(v) > maxRaw {
		return math.MaxInt64, nil
	}
	return physic.ElectricResistance(v) * 100 * physic.Ohm, nil
}

// RawResistance returns the resistance of the sensing element in units of
// 100Ω.
func (d *Dev) RawResistance() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.readRegister(regResistance)
	if err != nil {
		return 0, err
	}
	return uint32(r[0])<<24 | uint32(r[1])<<16 | uint32(r[2])<<8 | uint32(r[3]), nil
}

// maxRaw is the largest raw resistance that fits in a
// physic.ElectricResistance.
const maxRaw = math.MaxInt64 / uint64(100*physic.Ohm)

// Version returns the firmware version.
func (d *Dev) Version() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.readRegister(regVersion)
	if err != nil {
		return 0, err
	}
	return r[3], nil
}

// Calibrate writes the calibration register. Use ZeroCalibration in clean
// air, ResetCalibration to restore the factory values.
func (d *Dev) Calibrate(v uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := []byte{regCalibrate, 0x00, 0x0c, byte(v >> 8), byte(v), 0}
	w[5] = common.CRC8(w[1:5])
	if err := d.d.Tx(w, nil); err != nil {
		return fmt.Errorf("ags reg 0x%02X: %w", regCalibrate, err)
	}
	return nil
}

func (d *Dev) readRegister(reg byte) ([]byte, error) {
	if err := d.d.Tx([]byte{reg}, nil); err != nil {
		return nil, fmt.Errorf("ags reg 0x%02X: %w", reg, err)
	}
	r := make([]byte, 5)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("ags reg 0x%02X: %w", reg, err)
	}
	if err := common.CheckCRC8(r[:4], r[4]); err != nil {
		return nil, fmt.Errorf("ags reg 0x%02X: %w", reg, err)
	}
	return r, nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package veml6075

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddress is the only I²C address of the sensor.
const DefaultAddress uint16 = 0x10

const (
	regConf  byte = 0x00
	regUVA   byte = 0x07
	regUVB   byte = 0x09
	regComp1 byte = 0x0a
	regComp2 byte = 0x0b
	regID    byte = 0x0c
)

const (
	confHighDynamic byte = 1 << 3
	confTrigger     byte = 1 << 2
	confForceMode   byte = 1 << 1
)

// IntegrationTime is the measurement duration.
type IntegrationTime uint8

const (
	IT50ms IntegrationTime = iota
	IT100ms
	IT200ms
	IT400ms
	IT800ms
)

// Duration returns the integration time as a time.Duration.
func (i IntegrationTime) Duration() time.Duration {
	return (50 * time.Millisecond) << i
}

func (i IntegrationTime) String() string {
	return i.Duration().String()
}

// Coefficients converts the raw counts into compensated values and a UV
// index.
type Coefficients struct {
	UVAA        float64
	UVAB        float64
	UVBC        float64
	UVBD        float64
	UVAResponse float64
	UVBResponse float64
}

// DefaultCoefficients is for a sensor without cover glass.
var DefaultCoefficients = Coefficients{
	UVAA:        2.22,
	UVAB:        1.33,
	UVBC:        2.95,
	UVBD:        1.74,
	UVAResponse: 0.001461,
	UVBResponse: 0.002591,
}

// Opts holds the configuration options.
type Opts struct {
	IntegrationTime IntegrationTime
	HighDynamic     bool
	// ForceMode makes the sensor idle between Sense() calls, each triggering
	// a single measurement. Otherwise it measures continuously.
	ForceMode    bool
	Coefficients Coefficients
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	IntegrationTime: IT800ms,
	HighDynamic:     true,
	ForceMode:       true,
	Coefficients:    DefaultCoefficients,
}

// Env is a reading.
type Env struct {
	// UVA and UVB are the compensated counts.
	UVA float64
	UVB float64
	// Index is the UV index.
	Index float64
}

func (e *Env) String() string {
	return fmt.Sprintf("UVA: %.1f UVB: %.1f UVI: %.5f", e.UVA, e.UVB, e.Index)
}

// Dev is a handle to a VEML6075.
type Dev struct {
	d    *i2c.Dev
	c    Coefficients
	mu   sync.Mutex
	stop chan struct{}
}

// NewI2C configures a VEML6075 on the bus and returns a handle to it.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.IntegrationTime > IT800ms {
		return nil, fmt.Errorf("veml6075: invalid integration time %d", opts.IntegrationTime)
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, c: opts.Coefficients}
	conf := byte(opts.IntegrationTime) << 4
	if opts.HighDynamic {
		conf |= confHighDynamic
	}
	if opts.ForceMode {
		conf |= confForceMode
	}
	if err := d.writeConf(conf); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return "veml6075: " + d.d.String()
}

// ID returns the device identifier, 0x0026 for a genuine part.
func (d *Dev) ID() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(regID)
}

// SetCoefficients replaces the coefficients used by Sense().
func (d *Dev) SetCoefficients(c Coefficients) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.c = c
}

// Sense reads the UV light. In force mode it triggers a measurement and
// waits for it to complete.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	conf, err := d.read(regConf)
	if err != nil {
		return err
	}
	if byte(conf)&confForceMode != 0 {
		if err := d.writeConf(byte(conf) | confTrigger); err != nil {
			return err
		}
		it := IntegrationTime(conf>>4) & 7
		time.Sleep(it.Duration() * 11 / 10)
	}
	var raw [4]uint16
	for i, reg := range []byte{regUVA, regUVB, regComp1, regComp2} {
		if raw[i], err = d.read(reg); err != nil {
			return err
		}
	}
	c1, c2 := float64(raw[2]), float64(raw[3])
	e.UVA = float64(raw[0]) - d.c.UVAA*c1 - d.c.UVAB*c2
	e.UVB = float64(raw[1]) - d.c.UVBC*c1 - d.c.UVBD*c2
	e.Index = (e.UVA*d.c.UVAResponse + e.UVB*d.c.UVBResponse) / 2
	return nil
}

// SenseContinuous reads the sensor every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("veml6075: SenseContinuous() running already")
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

func (d *Dev) writeConf(conf byte) error {
	if err := d.d.Tx([]byte{regConf, conf, 0}, nil); err != nil {
		return fmt.Errorf("veml6075 write 0x%02X: %w", regConf, err)
	}
	return nil
}

func (d *Dev) read(reg byte) (uint16, error) {
	var r [2]byte
	if err := d.d.Tx([]byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("veml6075 read 0x%02X: %w", reg, err)
	}
	return uint16(r[0]) | uint16(r[1])<<8, nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht30

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
const DefaultAddress uint16 = 0x38

var argsMeasure = []byte{0xac, 0x33, 0x00}

const (
	bitBusy       byte = 1 << 7
	bitComparator byte = 1 << 2
)

// Opts holds the configuration options for the device.
type Opts struct {
	// ReadTimeout is how long a busy sensor is polled after the initial 80ms
	// conversion time. 0 means a single read.
	ReadTimeout time.Duration
	// WaitInterval is the delay between two reads of a busy sensor. Leave 0
	// to use 10ms.
	WaitInterval time.Duration
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	ReadTimeout:  150 * time.Millisecond,
	WaitInterval: 10 * time.Millisecond,
}

// Dev is a handle to a DHT30.
type Dev struct {
	opts Opts
	d    *i2c.Dev
	mu   sync.Mutex
	stop chan struct{}
}

// NewI2C returns a handle to a DHT30 on the bus. opts can be nil.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}, opts: *opts}
	if d.opts.WaitInterval <= 0 {
		d.opts.WaitInterval = 10 * time.Millisecond
	}
	return d, nil
}

func (d *Dev) String() string {
	return "dht30: " + d.d.String()
}

// Sense implements physic.SenseEnv. The measurement takes at least 80ms.
//
// It returns common.ErrNotReady when the sensor stays busy or flags a
// comparator interrupt, and a *common.ChecksumError on a corrupted frame.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.d.Tx(argsMeasure, nil); err != nil {
		return fmt.Errorf("dht30: %w", err)
	}
	time.Sleep(80 * time.Millisecond)

	end := time.Now().Add(d.opts.ReadTimeout)
	var data [7]byte
	for {
		if err := d.d.Tx(nil, data[:]); err != nil {
			return fmt.Errorf("dht30: %w", err)
		}
		if err := common.CheckCRC8(data[:6], data[6]); err != nil {
			return fmt.Errorf("dht30: %w", err)
		}
		if data[0]&bitComparator != 0 {
			return fmt.Errorf("dht30: comparator interrupt: %w", common.ErrNotReady)
		}
		if data[0]&bitBusy == 0 {
			break
		}
		if !time.Now().Before(end) {
			return fmt.Errorf("dht30: busy: %w", common.ErrNotReady)
		}
		time.Sleep(d.opts.WaitInterval)
	}

	hRaw := uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4
	tRaw := (uint32(data[3])&0xF)<<16 | uint32(data[4])<<8 | uint32(data[5])
	rh := float64(hRaw) / 1048576.0 * 100.0
	t := float64(tRaw)/1048576.0*200 - 50.0
	e.Humidity = physic.RelativeHumidity(rh * float64(physic.PercentRH))
	e.Temperature = physic.Temperature(t*float64(physic.Kelvin)) + physic.ZeroCelsius
	return nil
}

// SenseContinuous implements physic.SenseEnv.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("dht30: SenseContinuous() running already")
	}
	d.stop = make(chan struct{})
	return common.SenseEvery(interval, d.stop, d.Sense), nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = 10 * physic.MilliKelvin
	e.Humidity = 24 * physic.MilliRH
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

var _ physic.SenseEnv = &Dev{}

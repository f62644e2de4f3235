// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wsz

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

// Mode is the reporting mode.
type Mode int

const (
	// Passive is the question and answer mode.
	Passive Mode = iota
	// Active makes the sensor upload a reading every second.
	Active
)

func (m Mode) String() string {
	if m == Active {
		return "active"
	}
	return "passive"
}

const (
	frameStart  byte = 0xff
	frameLength      = 9
	// seekLimit is two frames worth of bytes.
	seekLimit = 2 * frameLength
)

var (
	cmdRead    = frame(0x86, 0x00)
	cmdPassive = frame(0x78, 0x41)
	cmdActive  = frame(0x78, 0x40)
)

// frame builds a request addressed to the sensor.
func frame(cmd, arg byte) []byte {
	b := []byte{frameStart, 0x01, cmd, arg, 0, 0, 0, 0, 0}
	b[8] = common.Negate(b[1:8])
	return b
}

// Env is a reading.
type Env struct {
	// Mass is the concentration in µg/m³. It is only valid when HasMass is
	// set.
	Mass    uint16
	HasMass bool
	// PPB is the concentration in parts per billion.
	PPB uint16
}

func (e *Env) String() string {
	if !e.HasMass {
		return fmt.Sprintf("%dppb", e.PPB)
	}
	return fmt.Sprintf("%dµg/m³ %dppb", e.Mass, e.PPB)
}

// Dev is a handle to a WS-Z.
type Dev struct {
	c    conn.Conn
	mode Mode
	mu   sync.Mutex
	stop chan struct{}
}

// New switches the sensor connected on c to mode and returns a handle to it.
func New(c conn.Conn, mode Mode) (*Dev, error) {
	d := &Dev{c: c, mode: mode}
	if err := common.DrainInput(c); err != nil {
		return nil, fmt.Errorf("wsz: %w", err)
	}
	switch mode {
	case Passive:
		var r [frameLength]byte
		if err := c.Tx(cmdPassive, r[:]); err != nil {
			return nil, fmt.Errorf("wsz: set %s mode: %w", mode, err)
		}
	case Active:
		if err := c.Tx(cmdActive, nil); err != nil {
			return nil, fmt.Errorf("wsz: set %s mode: %w", mode, err)
		}
		// Let the sensor switch, then drop what it sent in between.
		time.Sleep(200 * time.Millisecond)
		if err := common.DrainInput(c); err != nil {
			return nil, fmt.Errorf("wsz: %w", err)
		}
	default:
		return nil, fmt.Errorf("wsz: invalid mode %d", mode)
	}
	return d, nil
}

func (d *Dev) String() string {
	return "wsz: " + d.c.String()
}

// Mode returns the reporting mode.
func (d *Dev) Mode() Mode {
	return d.mode
}

// Sense requests one reading. It is only valid in Passive mode.
func (d *Dev) Sense(e *Env) error {
	if d.mode != Passive {
		return errors.New("wsz: Sense() requires passive mode, use ReadActive()")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.DrainInput(d.c); err != nil {
		return fmt.Errorf("wsz: %w", err)
	}
	var r [frameLength]byte
	if err := d.c.Tx(cmdRead, r[:]); err != nil {
		return fmt.Errorf("wsz: %w", err)
	}
	if r[0] != frameStart || r[1] != 0x86 {
		return fmt.Errorf("wsz: preamble % X: %w", r[:2], common.ErrFrame)
	}
	if err := common.CheckNegate(r[1:8], r[8]); err != nil {
		return fmt.Errorf("wsz: %w", err)
	}
	e.Mass = uint16(r[2])<<8 | uint16(r[3])
	e.HasMass = true
	e.PPB = uint16(r[6])<<8 | uint16(r[7])
	return nil
}

// ReadActive waits for the next frame uploaded in Active mode and decodes
// it. Two layouts are understood: the question and answer one and the
// 0x17 0x04 one, which only carries the ppb value.
func (d *Dev) ReadActive(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.Seek(d.c, frameStart, seekLimit); err != nil {
		return fmt.Errorf("wsz: %w", err)
	}
	var b [frameLength - 1]byte
	if err := d.c.Tx(nil, b[:]); err != nil {
		return fmt.Errorf("wsz: %w", err)
	}
	if err := common.CheckSum(b[:], 0); err != nil {
		return fmt.Errorf("wsz: %w", err)
	}
	switch {
	case b[0] == 0x86:
		e.Mass = uint16(b[1])<<8 | uint16(b[2])
		e.HasMass = true
		e.PPB = uint16(b[5])<<8 | uint16(b[6])
	case b[0] == 0x17 && b[1] == 0x04:
		e.Mass = 0
		e.HasMass = false
		e.PPB = uint16(b[3])<<8 | uint16(b[4])
	default:
		return fmt.Errorf("wsz: id 0x%02X unit 0x%02X: %w", b[0], b[1], common.ErrFrame)
	}
	return nil
}

// SenseContinuous reads the sensor every interval until Halt() is called. In
// Active mode the interval is ignored and every uploaded frame is returned.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("wsz: SenseContinuous() running already")
	}
	d.stop = make(chan struct{})
	if d.mode == Active {
		return d.upload(d.stop), nil
	}
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

func (d *Dev) upload(stop <-chan struct{}) <-chan Env {
	ch := make(chan Env, 16)
	go func() {
		defer close(ch)
		for {
			select {
			case <-stop:
				return
			default:
			}
			var e Env
			if err := d.ReadActive(&e); err != nil {
				select {
				case <-time.After(100 * time.Millisecond):
				case <-stop:
					return
				}
				continue
			}
			select {
			case ch <- e:
			case <-stop:
				return
			}
		}
	}()
	return ch
}

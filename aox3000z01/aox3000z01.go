// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package aox3000z01

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Baud is the line speed of the sensor.
const Baud = 2400 * physic.Hertz

const (
	frameStart  byte = 0x78
	frameLength      = 12
	// seekLimit is how many bytes are skipped looking for a frame start.
	seekLimit = 4 * frameLength
)

// Status values reported in a frame.
const (
	StatusOK      byte = 0x00
	StatusFault   byte = 0x01
	StatusHeating byte = 0x02
)

// StatusError is returned when the sensor reports it has no valid
// measurement. It wraps common.ErrNotReady.
type StatusError struct {
	Status byte
}

func (e *StatusError) Error() string {
	switch e.Status {
	case StatusFault:
		return "aox3000z01: sensor error"
	case StatusHeating:
		return "aox3000z01: sensor is heating"
	default:
		return fmt.Sprintf("aox3000z01: status 0x%02X", e.Status)
	}
}

func (e *StatusError) Unwrap() error {
	return common.ErrNotReady
}

// O2 is an oxygen concentration in 0.1%.
type O2 uint16

// Percent returns the concentration in %.
func (o O2) Percent() float64 {
	return float64(o) / 10
}

func (o O2) String() string {
	return strconv.FormatFloat(o.Percent(), 'f', 1, 64) + "%"
}

// Dev is a handle to an AOX3000-Z01.
type Dev struct {
	c    conn.Conn
	mu   sync.Mutex
	stop chan struct{}
}

// New returns a handle to a sensor connected on c.
func New(c conn.Conn) (*Dev, error) {
	return &Dev{c: c}, nil
}

func (d *Dev) String() string {
	return "aox3000z01: " + d.c.String()
}

// Sense waits for the next frame and decodes it.
func (d *Dev) Sense(o *O2) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.Seek(d.c, frameStart, seekLimit); err != nil {
		return fmt.Errorf("aox3000z01: %w", err)
	}
	var b [frameLength]byte
	b[0] = frameStart
	if err := d.c.Tx(nil, b[1:]); err != nil {
		return fmt.Errorf("aox3000z01: %w", err)
	}
	if b[1] != 0x09 {
		return fmt.Errorf("aox3000z01: length 0x%02X: %w", b[1], common.ErrFrame)
	}
	if b[9] != 0 || b[10] != 0 {
		return fmt.Errorf("aox3000z01: trailer % X: %w", b[9:11], common.ErrFrame)
	}
	if err := common.CheckNegate(b[:11], b[11]); err != nil {
		return fmt.Errorf("aox3000z01: %w", err)
	}
	if b[8] != StatusOK {
		return &StatusError{Status: b[8]}
	}
	*o = O2(uint16(b[2])<<8 | uint16(b[3]))
	return nil
}

// SenseContinuous decodes a frame every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan O2, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("aox3000z01: SenseContinuous() running already")
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

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gd60914

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
const Baud = 9600 * physic.Hertz

// Mode selects the compensation applied to the measured temperature. Its
// value is the measurement request byte.
type Mode byte

const (
	Object   Mode = 0xaa
	Forehead Mode = 0xab
	Wrist    Mode = 0xac
)

func (m Mode) String() string {
	switch m {
	case Object:
		return "object"
	case Forehead:
		return "forehead"
	case Wrist:
		return "wrist"
	default:
		return fmt.Sprintf("Mode(0x%02X)", byte(m))
	}
}

const cmdSingle byte = 0xa1

var (
	cmdReset       = []byte{0xa9, 0xa2, 0x01, 0x06, 0x02}
	cmdCalibrate35 = []byte{0xa9, 0xa2, 0x01, 0x0c, 0x05}
	cmdCalibrate42 = []byte{0xa9, 0xa2, 0x01, 0x0e, 0x0d}
)

// Dev is a handle to a GD60914.
type Dev struct {
	c    conn.Conn
	mode Mode
	mu   sync.Mutex
	stop chan struct{}
}

// New switches the module connected on c to single measurement and returns
// a handle to it.
func New(c conn.Conn, mode Mode) (*Dev, error) {
	switch mode {
	case Object, Forehead, Wrist:
	default:
		return nil, fmt.Errorf("gd60914: invalid mode %s", mode)
	}
	d := &Dev{c: c, mode: mode}
	if err := c.Tx([]byte{cmdSingle}, nil); err != nil {
		return nil, fmt.Errorf("gd60914: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return "gd60914: " + d.c.String()
}

// Mode returns the measurement mode.
func (d *Dev) Mode() Mode {
	return d.mode
}

// Sense requests one measurement.
func (d *Dev) Sense(t *physic.Temperature) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.DrainInput(d.c); err != nil {
		return fmt.Errorf("gd60914: %w", err)
	}
	var r [7]byte
	if err := d.c.Tx([]byte{byte(d.mode)}, r[:]); err != nil {
		return fmt.Errorf("gd60914: %w", err)
	}
	v, err := parseTenths(r[:])
	if err != nil {
		return fmt.Errorf("gd60914: %q: %w", r[:], err)
	}
	*t = physic.ZeroCelsius + physic.Temperature(v)*100*physic.MilliCelsius
	return nil
}

// SenseContinuous reads the temperature every interval until Halt() is
// called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("gd60914: SenseContinuous() running already")
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

// Reset restores the factory calibration.
func (d *Dev) Reset() error {
	return d.command(cmdReset)
}

// Calibrate35 calibrates against a 35°C black body.
func (d *Dev) Calibrate35() error {
	return d.command(cmdCalibrate35)
}

// Calibrate42 calibrates against a 42°C black body.
func (d *Dev) Calibrate42() error {
	return d.command(cmdCalibrate42)
}

func (d *Dev) command(cmd []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := common.DrainInput(d.c); err != nil {
		return fmt.Errorf("gd60914: %w", err)
	}
	if err := d.c.Tx(cmd, nil); err != nil {
		return fmt.Errorf("gd60914 cmd 0x%02X: %w", cmd[3], err)
	}
	return nil
}

// parseTenths decodes the leading signed decimal number of b. Leading
// blanks are skipped and anything after the digits is ignored.
func parseTenths(b []byte) (int, error) {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	j := i
	if j < len(b) && (b[j] == '-' || b[j] == '+') {
		j++
	}
	for j < len(b) && b[j] >= '0' && b[j] <= '9' {
		j++
	}
	v, err := strconv.Atoi(string(b[i:j]))
	if err != nil {
		return 0, common.ErrFrame
	}
	return v, nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package kanfurco2

import (
	"bytes"
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

const (
	head   byte = 0x11
	answer byte = 0x16

	cmdRead            byte = 0x01
	cmdCalibrate       byte = 0x03
	cmdSelfCalibration byte = 0x10
	cmdVersion         byte = 0x1e
	cmdSerial          byte = 0x1f
)

// PPM is a concentration in parts per million.
type PPM uint16

func (p PPM) String() string {
	return fmt.Sprintf("%d PPM", uint16(p))
}

// SelfCalibration is the automatic baseline correction setting.
type SelfCalibration struct {
	Enabled bool
	// Period is the correction period in days.
	Period uint8
	// Base is the concentration the lowest reading of a period is set to.
	Base PPM
}

// DefaultSelfCalibration is the factory setting.
var DefaultSelfCalibration = SelfCalibration{Enabled: true, Period: 7, Base: 400}

// Dev is a handle to a Kanfur CO2 sensor.
type Dev struct {
	c       conn.Conn
	version string
	serial  string
	mu      sync.Mutex
	stop    chan struct{}
}

// New identifies the sensor connected on c and applies the self calibration
// setting. sc can be nil to use DefaultSelfCalibration.
func New(c conn.Conn, sc *SelfCalibration) (*Dev, error) {
	if sc == nil {
		sc = &DefaultSelfCalibration
	}
	d := &Dev{c: c}
	var err error
	if d.version, err = d.Version(); err != nil {
		return nil, err
	}
	if d.serial, err = d.SerialNumber(); err != nil {
		return nil, err
	}
	if err := d.SetSelfCalibration(*sc); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	if d.serial == "" {
		return "kanfurco2: " + d.c.String()
	}
	return fmt.Sprintf("kanfurco2(%s): %s", d.serial, d.c)
}

// Sense reads the CO2 concentration.
func (d *Dev) Sense(p *PPM) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r [8]byte
	if err := d.command(cmdRead, nil, r[:]); err != nil {
		return err
	}
	if r[0] != answer {
		return fmt.Errorf("kanfurco2 cmd 0x%02X: header 0x%02X: %w", cmdRead, r[0], common.ErrFrame)
	}
	if err := common.CheckNegate(r[:7], r[7]); err != nil {
		return fmt.Errorf("kanfurco2 cmd 0x%02X: %w", cmdRead, err)
	}
	*p = PPM(uint16(r[3])<<8 | uint16(r[4]))
	return nil
}

// SenseContinuous reads the sensor every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan PPM, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("kanfurco2: SenseContinuous() running already")
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

// Calibrate tells the sensor the current concentration is p.
func (d *Dev) Calibrate(p PPM) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ack(cmdCalibrate, []byte{byte(p >> 8), byte(p)})
}

// SetSelfCalibration configures the automatic baseline correction.
func (d *Dev) SetSelfCalibration(sc SelfCalibration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var mode byte = 2
	if sc.Enabled {
		mode = 0
	}
	return d.ack(cmdSelfCalibration, []byte{100, mode, sc.Period, byte(sc.Base >> 8), byte(sc.Base), 100})
}

// Version returns the firmware version string.
func (d *Dev) Version() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r [15]byte
	if err := d.command(cmdVersion, nil, r[:]); err != nil {
		return "", err
	}
	if r[0] != answer || r[1] != 0x0c || r[2] != cmdVersion {
		return "", fmt.Errorf("kanfurco2 cmd 0x%02X: header % X: %w", cmdVersion, r[:3], common.ErrFrame)
	}
	return string(bytes.TrimRight(r[3:14], "\x00")), nil
}

// SerialNumber returns the five characters serial number.
func (d *Dev) SerialNumber() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r [9]byte
	if err := d.command(cmdSerial, nil, r[:]); err != nil {
		return "", err
	}
	if r[0] != answer {
		return "", fmt.Errorf("kanfurco2 cmd 0x%02X: header 0x%02X: %w", cmdSerial, r[0], common.ErrFrame)
	}
	return string(r[3:8]), nil
}

// ack sends a command whose answer is the 4 bytes acknowledgement
// 0x16 0x01 cmd checksum.
func (d *Dev) ack(cmd byte, data []byte) error {
	var r [4]byte
	if err := d.command(cmd, data, r[:]); err != nil {
		return err
	}
	want := []byte{answer, 0x01, cmd, 0}
	want[3] = common.Negate(want[:3])
	if !bytes.Equal(r[:], want) {
		return fmt.Errorf("kanfurco2 cmd 0x%02X: answer % X: %w", cmd, r[:], common.ErrFrame)
	}
	return nil
}

func (d *Dev) command(cmd byte, data, r []byte) error {
	if err := common.DrainInput(d.c); err != nil {
		return fmt.Errorf("kanfurco2 cmd 0x%02X: %w", cmd, err)
	}
	w := make([]byte, 0, len(data)+4)
	w = append(w, head, byte(len(data)+1), cmd)
	w = append(w, data...)
	w = append(w, common.Negate(w))
	if err := d.c.Tx(w, r); err != nil {
		return fmt.Errorf("kanfurco2 cmd 0x%02X: %w", cmd, err)
	}
	return nil
}

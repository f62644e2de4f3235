// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bl0910

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// Baud is the default line speed.
const Baud = 9600 * physic.Hertz

// Channels is the number of current channels.
const Channels = 10

const (
	cmdRead  byte = 0x35
	cmdWrite byte = 0xca
)

const (
	regIRMS        byte = 0x0c
	regVRMS        byte = 0x16
	regWatt        byte = 0x22
	regWattSum     byte = 0x2c
	regCFCount     byte = 0x2f
	regCFSum       byte = 0x39
	regFrequency   byte = 0x4e
	regTemperature byte = 0x5e
	regRMSGain     byte = 0x6c
	regRMSOffset   byte = 0x77
	regWriteProt   byte = 0x9e
	regSoftReset   byte = 0x9f
)

// Conversion factors from raw register values, for the reference design
// shunt and divider.
const (
	voltageRef    = 109700.0 / 1316200000
	currentRef    = 1.097 / (12875 * 5.1)
	powerRef      = 120340.9 / (4041259 * 5.1)
	totalPowerRef = 16 * powerRef
	// energyRef is in kWh per CF pulse.
	energyRef      = 4194304 * 0.032768 * 16 / (3600000 * 16 * (404125 * 51 / 120340.9))
	totalEnergyRef = 16 * energyRef
	frequencyRef   = 1e7
	currentCoeff   = 12875 * 5.1 / 1.097
)

// Channel is the reading of one current channel.
type Channel struct {
	// Current in A.
	Current float64
	// Power is the active power in W.
	Power float64
	// Energy in kWh.
	Energy float64
	// PowerFactor is Power / (Voltage·Current).
	PowerFactor float64
}

// Env is a full reading. Values whose register could not be read are NaN.
type Env struct {
	// Voltage in V.
	Voltage float64
	// Frequency of the line in Hz.
	Frequency float64
	// Temperature of the die in °C.
	Temperature float64
	// TotalPower in W.
	TotalPower float64
	// TotalEnergy in kWh.
	TotalEnergy float64
	Channels    [Channels]Channel
}

func (e *Env) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.1fV %.2fHz %.2f°C %.3fW %.3fkWh", e.Voltage, e.Frequency, e.Temperature, e.TotalPower, e.TotalEnergy)
	for i, c := range e.Channels {
		b.WriteString(" [" + strconv.Itoa(i+1) + "] ")
		fmt.Fprintf(&b, "%.3fA %.3fW", c.Current, c.Power)
	}
	return b.String()
}

// Dev is a handle to a BL0910.
type Dev struct {
	c    conn.Conn
	mu   sync.Mutex
	stop chan struct{}
}

// New resets the chip connected on c, unlocks its registers and clears the
// RMS offset and gain corrections of every channel.
func New(c conn.Conn) (*Dev, error) {
	d := &Dev{c: c}
	if err := d.ResetEnergy(); err != nil {
		return nil, err
	}
	if err := d.Unlock(); err != nil {
		return nil, err
	}
	for ch := 1; ch <= Channels; ch++ {
		if err := d.BiasCorrection(ch, 0, 0); err != nil {
			return nil, err
		}
	}
	for ch := 1; ch <= Channels; ch++ {
		if err := d.GainCorrection(ch, 1, 1); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dev) String() string {
	return "bl0910: " + d.c.String()
}

// Sense reads every register of interest. A failed read leaves only the
// corresponding value NaN; the first error is returned along with the
// partial result.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	read := func(reg byte, conv func(uint32) float64) float64 {
		raw, err := d.read(reg)
		if err != nil {
			if first == nil {
				first = err
			}
			return math.NaN()
		}
		return conv(raw)
	}
	unsigned := func(ref float64) func(uint32) float64 {
		return func(raw uint32) float64 { return float64(raw) * ref }
	}
	signed := func(ref float64) func(uint32) float64 {
		return func(raw uint32) float64 { return float64(int24(raw)) * ref }
	}

	e.Temperature = read(regTemperature, func(raw uint32) float64 {
		return float64(int24(raw)-64)*12.5/59 - 40
	})
	for i := range e.Channels {
		c := &e.Channels[i]
		c.Current = read(regIRMS+byte(i), unsigned(currentRef))
		c.Power = read(regWatt+byte(i), signed(powerRef))
		c.Energy = read(regCFCount+byte(i), unsigned(energyRef))
	}
	e.Frequency = read(regFrequency, func(raw uint32) float64 {
		if raw == 0 {
			return math.NaN()
		}
		return frequencyRef / float64(raw)
	})
	e.Voltage = read(regVRMS, unsigned(voltageRef))
	e.TotalPower = read(regWattSum, signed(totalPowerRef))
	e.TotalEnergy = read(regCFSum, unsigned(totalEnergyRef))
	for i := range e.Channels {
		c := &e.Channels[i]
		c.PowerFactor = powerFactor(c.Power, e.Voltage, c.Current)
	}
	return first
}

// SenseContinuous reads the chip every interval until Halt() is called.
// Partial readings are dropped.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("bl0910: SenseContinuous() running already")
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

// Read returns the raw value of a register.
func (d *Dev) Read(reg byte) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(reg)
}

// Write sets the raw value of a register. Only the 24 low bits of v are
// used.
func (d *Dev) Write(reg byte, v uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(reg, v)
}

// Unlock allows writing to the calibration registers.
func (d *Dev) Unlock() error {
	return d.Write(regWriteProt, 0x5555)
}

// Lock restores the write protection.
func (d *Dev) Lock() error {
	return d.Write(regWriteProt, 0)
}

// ResetEnergy soft resets the chip, which clears the energy counters along
// with every other register. Call Unlock() before writing registers again.
func (d *Dev) ResetEnergy() error {
	return d.Write(regSoftReset, 0x5a5a5a)
}

// BiasCorrection writes the RMS offset correction of channel ch, in 1..10,
// given the measured and the correct current in A.
func (d *Dev) BiasCorrection(ch int, measured, correct float64) error {
	if ch < 1 || ch > Channels {
		return fmt.Errorf("bl0910: invalid channel %d", ch)
	}
	m := measured * currentCoeff
	c := correct * currentCoeff
	return d.Write(regRMSOffset+byte(ch-1), uint32(int32((c*c-m*m)/256)))
}

// GainCorrection writes the RMS gain correction of channel ch, in 1..10,
// given the measured and the correct current in A.
func (d *Dev) GainCorrection(ch int, measured, correct float64) error {
	if ch < 1 || ch > Channels {
		return fmt.Errorf("bl0910: invalid channel %d", ch)
	}
	if measured == 0 {
		return errors.New("bl0910: gain correction requires a non zero measurement")
	}
	return d.Write(regRMSGain+byte(ch-1), uint32(int32((correct/measured-1)*65536)))
}

func (d *Dev) read(reg byte) (uint32, error) {
	if err := common.DrainInput(d.c); err != nil {
		return 0, fmt.Errorf("bl0910 read 0x%02X: %w", reg, err)
	}
	var r [4]byte
	if err := d.c.Tx([]byte{cmdRead, reg}, r[:]); err != nil {
		return 0, fmt.Errorf("bl0910 read 0x%02X: %w", reg, err)
	}
	if want := checksum(reg, r[:3]); want != r[3] {
		return 0, fmt.Errorf("bl0910 read 0x%02X: %w", reg, &common.ChecksumError{Got: r[3], Want: want})
	}
	return uint32(r[0]) | uint32(r[1])<<8 | uint32(r[2])<<16, nil
}

func (d *Dev) write(reg byte, v uint32) error {
	w := []byte{cmdWrite, reg, byte(v), byte(v >> 8), byte(v >> 16), 0}
	w[5] = checksum(reg, w[2:5])
	if err := d.c.Tx(w, nil); err != nil {
		return fmt.Errorf("bl0910 write 0x%02X: %w", reg, err)
	}
	return nil
}

// checksum covers the address and the data, not the command.
func checksum(reg byte, data []byte) byte {
	return (reg + common.Sum(data)) ^ 0xff
}

// int24 sign extends a 24 bits value.
func int24(raw uint32) int32 {
	return int32(raw<<8) >> 8
}

func powerFactor(p, v, i float64) float64 {
	if math.IsNaN(p) || math.IsNaN(v) || math.IsNaN(i) || v*i == 0 {
		return math.NaN()
	}
	return p / (v * i)
}

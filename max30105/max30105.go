// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package max30105

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the only I²C address of the module.
const DefaultAddress uint16 = 0x57

// PartID is the value of the part ID register of a genuine part.
const PartID byte = 0x15

const (
	regStatus1    byte = 0x00
	regStatus2    byte = 0x01
	regEnable1    byte = 0x02
	regEnable2    byte = 0x03
	regFIFOWrPtr  byte = 0x04
	regOverflow   byte = 0x05
	regFIFORdPtr  byte = 0x06
	regFIFOData   byte = 0x07
	regFIFOConfig byte = 0x08
	regModeConfig byte = 0x09
	regSPO2Config byte = 0x0a
	regLED1PA     byte = 0x0c
	regLED2PA     byte = 0x0d
	regLED3PA     byte = 0x0e
	regPilotPA    byte = 0x10
	regMultiLED1  byte = 0x11
	regMultiLED2  byte = 0x12
	regTempInt    byte = 0x1f
	regTempFrac   byte = 0x20
	regTempConfig byte = 0x21
	regProxThresh byte = 0x30
	regRevisionID byte = 0xfe
	regPartID     byte = 0xff
)

const (
	fifoDepth       = 32
	bytesPerChannel = 3
)

const (
	modeShutdown byte = 1 << 7
	modeReset    byte = 1 << 6
	tempEnable   byte = 1 << 0
)

// Interrupt status and enable bits.
const (
	intPowerReady  byte = 0x01
	intProximity   byte = 0x10
	intALCOverflow byte = 0x20
	intDataReady   byte = 0x40
	intFIFOFull    byte = 0x80
	// In the second status and enable registers.
	intTemperatureReady byte = 0x02
)

// Mode selects the active LEDs.
type Mode uint8

const (
	Red      Mode = 0x02
	RedIR    Mode = 0x03
	MultiLED Mode = 0x07
)

func (m Mode) String() string {
	switch m {
	case Red:
		return "red"
	case RedIR:
		return "red_ir"
	case MultiLED:
		return "green_red_ir"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// slots returns the multi LED time slots used in each mode.
func (m Mode) slots() []byte {
	const (
		slotRed   = 0x01
		slotIR    = 0x02
		slotGreen = 0x03
	)
	switch m {
	case Red:
		return []byte{slotRed}
	case RedIR:
		return []byte{slotRed, slotIR}
	case MultiLED:
		return []byte{slotRed, slotIR, slotGreen}
	default:
		return nil
	}
}

// ADCRange is the full scale of the photodetector ADC in nA, encoded.
type ADCRange uint8

const (
	ADC2048 ADCRange = iota
	ADC4096
	ADC8192
	ADC16384
)

// SampleAveraging is the number of samples averaged in each FIFO entry,
// encoded.
type SampleAveraging uint8

const (
	Avg1 SampleAveraging = iota
	Avg2
	Avg4
	Avg8
	Avg16
	Avg32
)

// SampleRate is the number of samples per second, encoded.
type SampleRate uint8

const (
	Rate50 SampleRate = iota
	Rate100
	Rate200
	Rate400
	Rate800
	Rate1000
	Rate1600
	Rate3200
)

// Resolution is the ADC resolution, encoded as bits-15.
type Resolution uint8

const (
	Res15Bit Resolution = iota
	Res16Bit
	Res17Bit
	Res18Bit
)

// LEDCurrent holds the pulse amplitude of each LED, 0.2mA per step.
type LEDCurrent struct {
	Red   uint8
	IR    uint8
	Green uint8
	Pilot uint8
}

// Interrupts selects the interrupt sources that drive the INT pin.
type Interrupts struct {
	FIFOAlmostFull   bool
	DataReady        bool
	ALCOverflow      bool
	Proximity        bool
	TemperatureReady bool
}

// Opts holds the configuration options.
type Opts struct {
	Mode               Mode
	ADCRange           ADCRange
	SampleAveraging    SampleAveraging
	FIFORollover       bool
	FIFOThreshold      uint8
	SampleRate         SampleRate
	Resolution         Resolution
	Current            LEDCurrent
	Interrupts         Interrupts
	ProximityThreshold uint8
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Mode:               MultiLED,
	ADCRange:           ADC16384,
	SampleAveraging:    Avg32,
	SampleRate:         Rate50,
	Resolution:         Res18Bit,
	Current:            LEDCurrent{Red: 0x7f, IR: 0x7f, Green: 0x7f, Pilot: 0x7f},
	ProximityThreshold: 100,
}

// Env is a reading of the FIFO.
type Env struct {
	// LED holds the last sample of each active LED: red, IR and green. The
	// values are only valid when Samples is not 0.
	LED [3]uint32
	// Samples is the number of samples found in the FIFO.
	Samples int
	// Overflow is the number of samples lost since the last read.
	Overflow uint8
	// WritePtr and ReadPtr are the FIFO pointers before the read.
	WritePtr uint8
	ReadPtr  uint8
}

func (e *Env) String() string {
	return fmt.Sprintf("LED: %v samples: %d overflow: %d", e.LED, e.Samples, e.Overflow)
}

// Flags are the interrupt status flags. Reading them clears them.
type Flags struct {
	PowerReady       bool
	Proximity        bool
	ALCOverflow      bool
	DataReady        bool
	FIFOFull         bool
	TemperatureReady bool
}

// Any returns true if any flag is raised.
func (f Flags) Any() bool {
	return f != Flags{}
}

// Dev is a handle to a MAX30105.
type Dev struct {
	d          *i2c.Dev
	activeLEDs int
	mu         sync.Mutex
	stop       chan struct{}
}

// NewI2C resets and configures a MAX30105 on the bus and returns a handle to
// it.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Mode.slots() == nil {
		return nil, fmt.Errorf("max30105: invalid mode %s", opts.Mode)
	}
	if opts.ADCRange > ADC16384 || opts.SampleAveraging > Avg32 || opts.SampleRate > Rate3200 || opts.Resolution > Res18Bit {
		return nil, errors.New("max30105: invalid sampling options")
	}
	if opts.FIFOThreshold > 0x0f {
		return nil, fmt.Errorf("max30105: invalid FIFO threshold %d", opts.FIFOThreshold)
	}
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: addr}}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setBits(regModeConfig, modeReset); err != nil {
		return nil, err
	}
	for _, reg := range []byte{regFIFOWrPtr, regOverflow, regFIFORdPtr} {
		if err := d.write(reg, 0); err != nil {
			return nil, err
		}
	}
	fifo := byte(opts.SampleAveraging)<<5 | opts.FIFOThreshold
	if opts.FIFORollover {
		fifo |= 1 << 4
	}
	if err := d.write(regFIFOConfig, fifo); err != nil {
		return nil, err
	}
	if err := d.setMode(opts.Mode); err != nil {
		return nil, err
	}
	spo2 := byte(opts.ADCRange)<<5 | byte(opts.SampleRate)<<2 | byte(opts.Resolution)
	if err := d.write(regSPO2Config, spo2); err != nil {
		return nil, err
	}
	if err := d.setLEDCurrent(opts.Current); err != nil {
		return nil, err
	}
	if err := d.setSlots(opts.Mode); err != nil {
		return nil, err
	}
	if err := d.enableInterrupts(opts.Interrupts); err != nil {
		return nil, err
	}
	if err := d.write(regProxThresh, opts.ProximityThreshold); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return "max30105: " + d.d.String()
}

// PartID returns the part ID register.
func (d *Dev) PartID() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(regPartID)
}

// RevisionID returns the revision ID register.
func (d *Dev) RevisionID() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(regRevisionID)
}

// Sense triggers a temperature conversion and reads the FIFO. Use
// Interrupts() to know when the temperature is ready.
func (d *Dev) Sense(e *Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setBits(regTempConfig, tempEnable); err != nil {
		return err
	}
	wr, err := d.read(regFIFOWrPtr)
	if err != nil {
		return err
	}
	rd, err := d.read(regFIFORdPtr)
	if err != nil {
		return err
	}
	e.WritePtr, e.ReadPtr = wr, rd
	n := (int(wr) - int(rd) + fifoDepth) % fifoDepth
	if n == 0 {
		ovf, err := d.read(regOverflow)
		if err != nil {
			return err
		}
		if ovf > 0 {
			// The FIFO is full and the pointers are equal. Move the write
			// pointer to read the latest sample.
			if err := d.write(regFIFOWrPtr, (wr+1)%fifoDepth); err != nil {
				return err
			}
			n = 1
		}
	}
	e.Samples = n
	e.LED = [3]uint32{}
	if n > 0 {
		stride := d.activeLEDs * bytesPerChannel
		data := make([]byte, n*stride)
		if err := d.d.Tx([]byte{regFIFOData}, data); err != nil {
			return fmt.Errorf("max30105 read 0x%02X: %w", regFIFOData, err)
		}
		spo2, err := d.read(regSPO2Config)
		if err != nil {
			return err
		}
		shift := 3 - spo2&3
		last := data[(n-1)*stride:]
		for i := range d.activeLEDs {
			s := last[i*bytesPerChannel:]
			v := (uint32(s[0])<<16 | uint32(s[1])<<8 | uint32(s[2])) & 0x3ffff
			e.LED[i] = v >> shift
		}
	}
	if e.Overflow, err = d.read(regOverflow); err != nil {
		return err
	}
	return nil
}

// SenseContinuous reads the FIFO every interval until Halt() is called.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("max30105: SenseContinuous() running already")
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

// Interrupts reads and clears the interrupt flags.
func (d *Dev) Interrupts() (Flags, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s1, err := d.read(regStatus1)
	if err != nil {
		return Flags{}, err
	}
	s2, err := d.read(regStatus2)
	if err != nil {
		return Flags{}, err
	}
	return Flags{
		PowerReady:       s1&intPowerReady != 0,
		Proximity:        s1&intProximity != 0,
		ALCOverflow:      s1&intALCOverflow != 0,
		DataReady:        s1&intDataReady != 0,
		FIFOFull:         s1&intFIFOFull != 0,
		TemperatureReady: s2&intTemperatureReady != 0,
	}, nil
}

// Temperature returns the die temperature of the last conversion.
func (d *Dev) Temperature() (physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, err := d.read(regTempInt)
	if err != nil {
		return 0, err
	}
	f, err := d.read(regTempFrac)
	if err != nil {
		return 0, err
	}
	return physic.ZeroCelsius + physic.Temperature(int8(i))*physic.Celsius + physic.Temperature(f&0x0f)*62500*physic.MicroKelvin, nil
}

// Reset resets every register to its power on value.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setBits(regModeConfig, modeReset)
}

// Shutdown puts the module in power save mode.
func (d *Dev) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setBits(regModeConfig, modeShutdown)
}

// Wakeup leaves power save mode.
func (d *Dev) Wakeup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regModeConfig)
	if err != nil {
		return err
	}
	return d.write(regModeConfig, v&^modeShutdown)
}

// SetMode changes the active LEDs.
func (d *Dev) SetMode(m Mode) error {
	if m.slots() == nil {
		return fmt.Errorf("max30105: invalid mode %s", m)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setMode(m); err != nil {
		return err
	}
	return d.setSlots(m)
}

// SetLEDCurrent changes the LED pulse amplitudes.
func (d *Dev) SetLEDCurrent(c LEDCurrent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLEDCurrent(c)
}

// SetProximityThreshold changes the proximity interrupt threshold.
func (d *Dev) SetProximityThreshold(t uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(regProxThresh, t)
}

// EnableInterrupts selects the interrupt sources.
func (d *Dev) EnableInterrupts(i Interrupts) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enableInterrupts(i)
}

func (d *Dev) setMode(m Mode) error {
	v, err := d.read(regModeConfig)
	if err != nil {
		return err
	}
	return d.write(regModeConfig, v&0xf8|byte(m))
}

func (d *Dev) setSlots(m Mode) error {
	s := m.slots()
	d.activeLEDs = len(s)
	var ctrl [2]byte
	for i, slot := range s {
		ctrl[i/2] |= slot << (4 * (i % 2))
	}
	if err := d.write(regMultiLED1, ctrl[0]); err != nil {
		return err
	}
	return d.write(regMultiLED2, ctrl[1])
}

func (d *Dev) setLEDCurrent(c LEDCurrent) error {
	for _, w := range [...]struct{ reg, v byte }{
		{regLED1PA, c.Red}, {regLED2PA, c.IR}, {regLED3PA, c.Green}, {regPilotPA, c.Pilot},
	} {
		if err := d.write(w.reg, w.v); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) enableInterrupts(i Interrupts) error {
	var e1, e2 byte
	if i.FIFOAlmostFull {
		e1 |= intFIFOFull
	}
	if i.DataReady {
		e1 |= intDataReady
	}
	if i.ALCOverflow {
		e1 |= intALCOverflow
	}
	if i.Proximity {
		e1 |= intProximity
	}
	if i.TemperatureReady {
		e2 |= intTemperatureReady
	}
	if err := d.write(regEnable1, e1); err != nil {
		return err
	}
	return d.write(regEnable2, e2)
}

func (d *Dev) setBits(reg, bits byte) error {
	v, err := d.read(reg)
	if err != nil {
		return err
	}
	return d.write(reg, v|bits)
}

func (d *Dev) read(reg byte) (byte, error) {
	var r [1]byte
	if err := d.d.Tx([]byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("max30105 read 0x%02X: %w", reg, err)
	}
	return r[0], nil
}

func (d *Dev) write(reg, v byte) error {
	if err := d.d.Tx([]byte{reg, v}, nil); err != nil {
		return fmt.Errorf("max30105 write 0x%02X: %w", reg, err)
	}
	return nil
}

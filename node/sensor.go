// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/GermanBionicSystems/sensorhub/node/config"
	"github.com/GermanBionicSystems/sensorhub/sink"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/uart"
)

// output describes how a value of a platform is presented.
type output struct {
	unit     string
	class    string
	accuracy int
	binary   bool
}

// platform is an entry of the platform table.
type platform struct {
	// interval is the default update_interval.
	interval time.Duration
	uart     bool
	// options lists the platform options in use.
	options []string
	outputs map[string]output
	load    func(l *loader) (*device, error)
}

// platforms is populated by the sensor_*.go files.
var platforms = map[string]*platform{}

func (n *Node) loadSensor(cfg *config.Sensor) error {
	slog.Info("loading sensor", "platform", cfg.Platform, "name", cfg.Name)
	p := platforms[cfg.Platform]
	if p == nil {
		return fmt.Errorf("unknown platform %q", cfg.Platform)
	}
	l := &loader{n: n, cfg: cfg, p: p}
	if err := l.check(); err != nil {
		return fmt.Errorf("sensor(%s): %w", cfg.Platform, err)
	}
	d, err := p.load(l)
	if err != nil {
		return fmt.Errorf("sensor(%s): %w", cfg.Platform, err)
	}
	d.platform = cfg.Platform
	if d.setup != nil {
		// The device stays loaded; setup is tried again before each poll.
		if err := n.setup(d); err != nil {
			slog.Warn("setup failed", "sensor", d.r.String(), "platform", d.platform, "reason", reason(err), "err", err)
		}
	}
	d.name = d.r.String()
	if d.interval = cfg.UpdateInterval; d.interval == 0 {
		d.interval = p.interval
	}
	n.devices = append(n.devices, d)
	n.entities = append(n.entities, l.attached...)
	return nil
}

// loader gives a platform access to its configuration and to the node.
type loader struct {
	n        *Node
	cfg      *config.Sensor
	p        *platform
	attached []*sink.Entity
}

// check rejects outputs and bus options the platform doesn't have.
func (l *loader) check() error {
	var unknown []string
	for k := range l.cfg.Outputs {
		if _, ok := l.p.outputs[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) != 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown option or output %s", strings.Join(unknown, ", "))
	}
	for k, set := range options {
		if set(l.cfg) && !slices.Contains(l.p.options, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) != 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unsupported option %s", strings.Join(unknown, ", "))
	}
	if l.p.uart {
		if l.cfg.UARTID == "" {
			return errors.New("uart_id is required")
		}
		if l.cfg.I2CID != "" || l.cfg.Address != 0 {
			return errors.New("i2c_id and address are not supported")
		}
	} else {
		if l.cfg.UARTID != "" || l.cfg.Baud != 0 {
			return errors.New("uart_id and baud are not supported")
		}
	}
	return nil
}

// entity returns the entity for the output key, or nil when it has no name.
func (l *loader) entity(key string) *sink.Entity {
	o := l.cfg.Outputs[key]
	if o.Name == "" {
		return nil
	}
	out := l.p.outputs[key]
	name := o.Name
	if l.cfg.Name != "" {
		name = l.cfg.Name + " " + name
	}
	e := &sink.Entity{
		Name:        name,
		ObjectID:    sink.ObjectID(name),
		Unit:        out.unit,
		DeviceClass: out.class,
		Accuracy:    out.accuracy,
		Binary:      out.binary,
	}
	l.attached = append(l.attached, e)
	return e
}

// any returns true if at least one of the output keys is attached.
func (l *loader) any(keys ...string) bool {
	for _, k := range keys {
		if l.cfg.Outputs[k].Name != "" {
			return true
		}
	}
	return false
}

// i2c returns the bus and address to use.
func (l *loader) i2c(def uint16) (i2c.Bus, uint16, error) {
	b := l.n.buses[l.cfg.I2CID]
	if b == nil {
		if l.cfg.I2CID != "" {
			return nil, 0, fmt.Errorf("unknown i2c_id %q", l.cfg.I2CID)
		}
		if len(l.n.buses) != 1 {
			return nil, 0, errors.New("i2c_id is required")
		}
		for _, v := range l.n.buses {
			b = v
		}
	}
	addr := def
	if l.cfg.Address != 0 {
		addr = uint16(l.cfg.Address)
	}
	return b, addr, nil
}

// connect connects to the UART at the device's speed, 8N1.
func (l *loader) connect(def physic.Frequency) (conn.Conn, error) {
	p := l.n.ports[l.cfg.UARTID]
	if p == nil {
		return nil, fmt.Errorf("unknown uart_id %q", l.cfg.UARTID)
	}
	f := def
	if l.cfg.Baud != 0 {
		f = physic.Frequency(l.cfg.Baud) * physic.Hertz
	}
	return p.Connect(f, uart.One, uart.NoParity, uart.NoFlow, 8)
}

// pending stands for a device until its setup succeeds.
type pending struct {
	name string
}

func (p *pending) String() string {
	return p.name
}

func (p *pending) Halt() error {
	return nil
}

// options maps each platform option to a test of whether it is set.
var options = map[string]func(c *config.Sensor) bool{
	"variant":             func(c *config.Sensor) bool { return c.Variant != "" },
	"mode":                func(c *config.Sensor) bool { return c.Mode != "" },
	"auto_calibration":    func(c *config.Sensor) bool { return c.AutoCalibration != nil },
	"integration_time":    func(c *config.Sensor) bool { return c.IntegrationTime != 0 },
	"high_dynamic":        func(c *config.Sensor) bool { return c.HighDynamic != nil },
	"force_mode":          func(c *config.Sensor) bool { return c.ForceMode != nil },
	"adc_range":           func(c *config.Sensor) bool { return c.ADCRange != 0 },
	"sample_averaging":    func(c *config.Sensor) bool { return c.SampleAveraging != 0 },
	"sample_rate":         func(c *config.Sensor) bool { return c.SampleRate != 0 },
	"resolution":          func(c *config.Sensor) bool { return c.Resolution != 0 },
	"led_current":         func(c *config.Sensor) bool { return c.LEDCurrent != (config.LEDCurrent{}) },
	"interrupts":          func(c *config.Sensor) bool { return len(c.Interrupts) != 0 },
	"interrupt_pin":       func(c *config.Sensor) bool { return c.InterruptPin != "" },
	"proximity_threshold": func(c *config.Sensor) bool { return c.ProximityThreshold != nil },
}

// Units shared by the platforms.
const (
	unitCelsius = "°C"
	unitPercent = "%"
	unitPPM     = "ppm"
	unitPPB     = "ppb"
	unitUGM3    = "µg/m³"
)

var temperature = output{unit: unitCelsius, class: "temperature", accuracy: 1}

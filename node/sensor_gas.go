// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GermanBionicSystems/sensorhub/acd"
	"github.com/GermanBionicSystems/sensorhub/ags"
	"github.com/GermanBionicSystems/sensorhub/kanfurco2"
	"github.com/GermanBionicSystems/sensorhub/wsz"
	"periph.io/x/conn/v3"
)

func init() {
	ppm := output{unit: unitPPM, accuracy: 0}
	co2 := output{unit: unitPPM, class: "carbon_dioxide", accuracy: 0}
	platforms["acd"] = &platform{
		interval: 20 * time.Second,
		options:  []string{"variant", "auto_calibration"},
		outputs: map[string]output{
			"co2":         co2,
			"r32":         ppm,
			"temperature": {unit: unitCelsius, class: "temperature", accuracy: 0},
			"base":        ppm,
		},
		load: loadACD,
	}
	platforms["ags"] = &platform{
		interval: 20 * time.Second,
		options:  []string{"variant"},
		outputs: map[string]output{
			"tvoc":            {unit: unitPPB, class: "volatile_organic_compounds_parts", accuracy: 0},
			"hydrogen":        ppm,
			"methane":         ppm,
			"carbon_monoxide": {unit: unitPPM, class: "carbon_monoxide", accuracy: 0},
			"gas":             ppm,
			"resistance":      {unit: "Ω", accuracy: 0},
		},
		load: loadAGS,
	}
	platforms["kanfurco2"] = &platform{
		interval: 20 * time.Second,
		uart:     true,
		options:  []string{"auto_calibration"},
		outputs:  map[string]output{"co2": co2},
		load:     loadKanfurCO2,
	}
	platforms["wsz"] = &platform{
		interval: 20 * time.Second,
		uart:     true,
		options:  []string{"mode"},
		outputs: map[string]output{
			"formaldehyde":     {unit: unitUGM3, accuracy: 0},
			"formaldehyde_ppb": {unit: unitPPB, accuracy: 0},
		},
		load: loadWSZ,
	}
}

func loadACD(l *loader) (*device, error) {
	variant := acd.ACD1100
	switch strings.ToLower(l.cfg.Variant) {
	case "", "acd1100":
	case "acd3100":
		variant = acd.ACD3100
	case "acd4100":
		variant = acd.ACD4100
	default:
		return nil, fmt.Errorf("invalid variant %q", l.cfg.Variant)
	}
	gas, other := "co2", "r32"
	if variant == acd.ACD4100 {
		gas, other = other, gas
	}
	if l.any(other) {
		return nil, fmt.Errorf("%s only reports %s, remove %s", variant, gas, other)
	}
	b, addr, err := l.i2c(acd.SensorAddress)
	if err != nil {
		return nil, err
	}
	d, err := acd.NewI2C(b, addr, variant)
	if err != nil {
		return nil, err
	}
	conc := l.entity(gas)
	temp := l.entity("temperature")
	base := l.entity("base")
	n := l.n
	dev := &device{
		r: d,
		poll: func(ctx context.Context) error {
			var e acd.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			var target acd.PPM
			if base != nil {
				if target, err = d.CalibrationTarget(); err != nil {
					return err
				}
			}
			n.publish(ctx, conc, float64(e.Concentration))
			n.publish(ctx, temp, e.Temperature.Celsius())
			n.publish(ctx, base, float64(target))
			return nil
		},
	}
	if l.cfg.AutoCalibration != nil {
		on := *l.cfg.AutoCalibration
		dev.setup = func() (conn.Resource, error) {
			return d, d.SetCalibrationMode(on)
		}
	}
	return dev, nil
}

func loadAGS(l *loader) (*device, error) {
	variant := ags.Generic
	switch strings.ToLower(l.cfg.Variant) {
	case "", "agsxxxx", "generic":
	case "ags2602":
		variant = ags.AGS2602
	case "ags2616":
		variant = ags.AGS2616
	case "ags3870":
		variant = ags.AGS3870
	case "ags3871":
		variant = ags.AGS3871
	default:
		return nil, fmt.Errorf("invalid variant %q", l.cfg.Variant)
	}
	for _, k := range []string{"tvoc", "hydrogen", "methane", "carbon_monoxide", "gas"} {
		if k != variant.Gas() && l.any(k) {
			return nil, fmt.Errorf("%s doesn't report %s", variant, k)
		}
	}
	b, addr, err := l.i2c(ags.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := ags.NewI2C(b, addr, variant)
	if err != nil {
		return nil, err
	}
	gas := l.entity(variant.Gas())
	res := l.entity("resistance")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var c uint32
			if err := d.Sense(&c); err != nil {
				return err
			}
			// The raw unit is 100Ω.
			var r uint32
			if res != nil {
				var err error
				if r, err = d.RawResistance(); err != nil {
					return err
				}
			}
			n.publish(ctx, gas, float64(c))
			n.publish(ctx, res, float64(r)*100)
			return nil
		},
	}, nil
}

func loadKanfurCO2(l *loader) (*device, error) {
	c, err := l.connect(kanfurco2.Baud)
	if err != nil {
		return nil, err
	}
	sc := kanfurco2.DefaultSelfCalibration
	if l.cfg.AutoCalibration != nil {
		sc.Enabled = *l.cfg.AutoCalibration
	}
	co2 := l.entity("co2")
	n := l.n
	var d *kanfurco2.Dev
	return &device{
		r: &pending{name: "kanfurco2: " + c.String()},
		setup: func() (conn.Resource, error) {
			var err error
			d, err = kanfurco2.New(c, &sc)
			return d, err
		},
		poll: func(ctx context.Context) error {
			var p kanfurco2.PPM
			if err := d.Sense(&p); err != nil {
				return err
			}
			n.publish(ctx, co2, float64(p))
			return nil
		},
	}, nil
}

func loadWSZ(l *loader) (*device, error) {
	mode := wsz.Passive
	switch l.cfg.Mode {
	case "", "passive":
	case "active":
		mode = wsz.Active
	default:
		return nil, fmt.Errorf("invalid mode %q", l.cfg.Mode)
	}
	c, err := l.connect(wsz.Baud)
	if err != nil {
		return nil, err
	}
	mass := l.entity("formaldehyde")
	ppb := l.entity("formaldehyde_ppb")
	n := l.n
	send := func(ctx context.Context, e *wsz.Env) {
		if e.HasMass {
			n.publish(ctx, mass, float64(e.Mass))
		}
		n.publish(ctx, ppb, float64(e.PPB))
	}
	var d *wsz.Dev
	dev := &device{
		r: &pending{name: "wsz: " + c.String()},
		setup: func() (conn.Resource, error) {
			var err error
			d, err = wsz.New(c, mode)
			return d, err
		},
		poll: func(ctx context.Context) error {
			var e wsz.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			send(ctx, &e)
			return nil
		},
	}
	if mode == wsz.Active {
		// The sensor pushes a frame every second; read them as they come.
		dev.poll = nil
		dev.run = func(ctx context.Context) {
			for ctx.Err() == nil {
				var e wsz.Env
				if err := d.ReadActive(&e); err != nil {
					n.warn(dev, err)
					select {
					case <-ctx.Done():
					case <-time.After(100 * time.Millisecond):
					}
					continue
				}
				send(ctx, &e)
			}
		}
	}
	return dev, nil
}

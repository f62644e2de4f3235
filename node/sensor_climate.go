// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/sensorhub/afs01"
	"github.com/GermanBionicSystems/sensorhub/agr12"
	"github.com/GermanBionicSystems/sensorhub/ash01ib"
	"github.com/GermanBionicSystems/sensorhub/dht30"
	"github.com/GermanBionicSystems/sensorhub/gd60914"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

func init() {
	platforms["afs01"] = &platform{
		interval: 20 * time.Second,
		outputs: map[string]output{
			"volume_flow_rate": {unit: "cm³/min", class: "volume_flow_rate", accuracy: 1},
		},
		load: loadAFS01,
	}
	platforms["agr12"] = &platform{
		interval: 20 * time.Second,
		outputs: map[string]output{
			"pressure": {unit: "kPa", class: "pressure", accuracy: 1},
		},
		load: loadAGR12,
	}
	platforms["ash01ib"] = &platform{
		interval: 20 * time.Second,
		outputs: map[string]output{
			"humidity": {unit: unitPercent, class: "humidity", accuracy: 0},
		},
		load: loadASH01IB,
	}
	platforms["dht30"] = &platform{
		interval: 20 * time.Second,
		outputs: map[string]output{
			"temperature": {unit: unitCelsius, class: "temperature", accuracy: 2},
			"humidity":    {unit: unitPercent, class: "humidity", accuracy: 2},
		},
		load: loadDHT30,
	}
	platforms["gd60914"] = &platform{
		interval: 20 * time.Second,
		uart:     true,
		options:  []string{"mode"},
		outputs: map[string]output{
			"temperature": {unit: unitCelsius, class: "temperature", accuracy: 2},
		},
		load: loadGD60914,
	}
}

func loadAFS01(l *loader) (*device, error) {
	b, addr, err := l.i2c(afs01.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := afs01.NewI2C(b, addr)
	if err != nil {
		return nil, err
	}
	flow := l.entity("volume_flow_rate")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var f afs01.CCM
			if err := d.Sense(&f); err != nil {
				return err
			}
			n.publish(ctx, flow, float64(f))
			return nil
		},
	}, nil
}

func loadAGR12(l *loader) (*device, error) {
	b, addr, err := l.i2c(agr12.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := agr12.NewI2C(b, addr)
	if err != nil {
		return nil, err
	}
	pres := l.entity("pressure")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var e physic.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			n.publish(ctx, pres, float64(e.Pressure)/float64(physic.KiloPascal))
			return nil
		},
	}, nil
}

func loadASH01IB(l *loader) (*device, error) {
	b, addr, err := l.i2c(ash01ib.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := ash01ib.NewI2C(b, addr)
	if err != nil {
		return nil, err
	}
	hum := l.entity("humidity")
	n := l.n
	return &device{
		r: d,
		setup: func() (conn.Resource, error) {
			return d, d.Start()
		},
		poll: func(ctx context.Context) error {
			var h physic.RelativeHumidity
			if err := d.Sense(&h); err != nil {
				return err
			}
			n.publish(ctx, hum, float64(h)/float64(physic.PercentRH))
			return nil
		},
	}, nil
}

func loadDHT30(l *loader) (*device, error) {
	b, addr, err := l.i2c(dht30.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := dht30.NewI2C(b, addr, &dht30.DefaultOpts)
	if err != nil {
		return nil, err
	}
	temp := l.entity("temperature")
	hum := l.entity("humidity")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var e physic.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			n.publish(ctx, temp, e.Temperature.Celsius())
			n.publish(ctx, hum, float64(e.Humidity)/float64(physic.PercentRH))
			return nil
		},
	}, nil
}

func loadGD60914(l *loader) (*device, error) {
	mode := gd60914.Object
	switch l.cfg.Mode {
	case "", "object":
	case "forehead":
		mode = gd60914.Forehead
	case "wrist":
		mode = gd60914.Wrist
	default:
		return nil, fmt.Errorf("invalid mode %q", l.cfg.Mode)
	}
	c, err := l.connect(gd60914.Baud)
	if err != nil {
		return nil, err
	}
	d, err := gd60914.New(c, mode)
	if err != nil {
		return nil, err
	}
	temp := l.entity("temperature")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var t physic.Temperature
			if err := d.Sense(&t); err != nil {
				return err
			}
			n.publish(ctx, temp, t.Celsius())
			return nil
		},
	}, nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"time"

	"github.com/GermanBionicSystems/sensorhub/aof1000"
	"github.com/GermanBionicSystems/sensorhub/aox3000z01"
	"github.com/GermanBionicSystems/sensorhub/apm10"
	"github.com/GermanBionicSystems/sensorhub/apm3001"
	"periph.io/x/conn/v3"
)

func init() {
	o2 := output{unit: unitPercent, accuracy: 1}
	pm := func(class string) output {
		return output{unit: unitUGM3, class: class, accuracy: 0}
	}
	platforms["aof1000"] = &platform{
		interval: 20 * time.Second,
		uart:     true,
		outputs: map[string]output{
			"o2":               o2,
			"volume_flow_rate": {unit: "L/min", class: "volume_flow_rate", accuracy: 1},
			"temperature":      temperature,
		},
		load: loadAOF1000,
	}
	platforms["aox3000z01"] = &platform{
		interval: 20 * time.Second,
		uart:     true,
		outputs:  map[string]output{"o2": o2},
		load:     loadAOX3000Z01,
	}
	platforms["apm10"] = &platform{
		interval: 20 * time.Second,
		outputs: map[string]output{
			"pm_1_0":  pm("pm1"),
			"pm_2_5":  pm("pm25"),
			"pm_10_0": pm("pm10"),
		},
		load: loadAPM10,
	}
	platforms["apm3001"] = &platform{
		interval: 20 * time.Second,
		uart:     true,
		outputs: map[string]output{
			"pm_1_0":  pm("pm1"),
			"pm_2_5":  pm("pm25"),
			"pm_4_0":  pm(""),
			"pm_10_0": pm("pm10"),
		},
		load: loadAPM3001,
	}
}

func loadAOF1000(l *loader) (*device, error) {
	c, err := l.connect(aof1000.Baud)
	if err != nil {
		return nil, err
	}
	d, err := aof1000.New(c)
	if err != nil {
		return nil, err
	}
	o2 := l.entity("o2")
	flow := l.entity("volume_flow_rate")
	temp := l.entity("temperature")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var e aof1000.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			n.publish(ctx, o2, e.O2.Float64())
			n.publish(ctx, flow, e.Flow.Float64())
			n.publish(ctx, temp, e.Temperature.Celsius())
			return nil
		},
	}, nil
}

func loadAOX3000Z01(l *loader) (*device, error) {
	c, err := l.connect(aox3000z01.Baud)
	if err != nil {
		return nil, err
	}
	d, err := aox3000z01.New(c)
	if err != nil {
		return nil, err
	}
	o2 := l.entity("o2")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var o aox3000z01.O2
			if err := d.Sense(&o); err != nil {
				return err
			}
			n.publish(ctx, o2, o.Percent())
			return nil
		},
	}, nil
}

func loadAPM10(l *loader) (*device, error) {
	b, addr, err := l.i2c(apm10.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := apm10.NewI2C(b, addr)
	if err != nil {
		return nil, err
	}
	pm1 := l.entity("pm_1_0")
	pm25 := l.entity("pm_2_5")
	pm10 := l.entity("pm_10_0")
	n := l.n
	return &device{
		r: d,
		setup: func() (conn.Resource, error) {
			return d, d.Start()
		},
		poll: func(ctx context.Context) error {
			var e apm10.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			n.publish(ctx, pm1, float64(e.PM1_0))
			n.publish(ctx, pm25, float64(e.PM2_5))
			n.publish(ctx, pm10, float64(e.PM10))
			return nil
		},
	}, nil
}

func loadAPM3001(l *loader) (*device, error) {
	c, err := l.connect(apm3001.Baud)
	if err != nil {
		return nil, err
	}
	d, err := apm3001.New(c)
	if err != nil {
		return nil, err
	}
	pm1 := l.entity("pm_1_0")
	pm25 := l.entity("pm_2_5")
	pm4 := l.entity("pm_4_0")
	pm10 := l.entity("pm_10_0")
	n := l.n
	return &device{
		r: d,
		setup: func() (conn.Resource, error) {
			return d, d.Start()
		},
		poll: func(ctx context.Context) error {
			var e apm3001.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			n.publish(ctx, pm1, float64(e.PM1_0))
			n.publish(ctx, pm25, float64(e.PM2_5))
			n.publish(ctx, pm4, float64(e.PM4_0))
			n.publish(ctx, pm10, float64(e.PM10))
			return nil
		},
	}, nil
}

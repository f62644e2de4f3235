// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"strconv"
	"time"

	"github.com/GermanBionicSystems/sensorhub/bl0910"
	"github.com/GermanBionicSystems/sensorhub/sink"
	"periph.io/x/conn/v3"
)

func init() {
	power := output{unit: "W", class: "power", accuracy: 3}
	energy := output{unit: "kWh", class: "energy", accuracy: 3}
	outputs := map[string]output{
		"voltage":      {unit: "V", class: "voltage", accuracy: 1},
		"frequency":    {unit: "Hz", class: "frequency", accuracy: 2},
		"temperature":  {unit: unitCelsius, class: "temperature", accuracy: 2},
		"total_power":  power,
		"total_energy": energy,
	}
	for i := 1; i <= bl0910.Channels; i++ {
		n := strconv.Itoa(i)
		outputs["current_"+n] = output{unit: "A", class: "current", accuracy: 3}
		outputs["power_"+n] = power
		outputs["energy_"+n] = energy
		outputs["power_factor_"+n] = output{class: "power_factor", accuracy: 3}
	}
	platforms["bl0910"] = &platform{
		interval: 10 * time.Second,
		uart:     true,
		outputs:  outputs,
		load:     loadBL0910,
	}
}

func loadBL0910(l *loader) (*device, error) {
	c, err := l.connect(bl0910.Baud)
	if err != nil {
		return nil, err
	}
	volt := l.entity("voltage")
	freq := l.entity("frequency")
	temp := l.entity("temperature")
	totalPower := l.entity("total_power")
	totalEnergy := l.entity("total_energy")
	var ch [bl0910.Channels][4]*sink.Entity
	for i := range ch {
		n := strconv.Itoa(i + 1)
		ch[i] = [4]*sink.Entity{
			l.entity("current_" + n),
			l.entity("power_" + n),
			l.entity("energy_" + n),
			l.entity("power_factor_" + n),
		}
	}
	n := l.n
	var d *bl0910.Dev
	return &device{
		r: &pending{name: "bl0910: " + c.String()},
		setup: func() (conn.Resource, error) {
			var err error
			d, err = bl0910.New(c)
			return d, err
		},
		poll: func(ctx context.Context) error {
			// A failed register only drops its own value; publish the rest
			// and report the first error.
			var e bl0910.Env
			err := d.Sense(&e)
			n.publish(ctx, volt, e.Voltage)
			n.publish(ctx, freq, e.Frequency)
			n.publish(ctx, temp, e.Temperature)
			n.publish(ctx, totalPower, e.TotalPower)
			n.publish(ctx, totalEnergy, e.TotalEnergy)
			for i, c := range e.Channels {
				n.publish(ctx, ch[i][0], c.Current)
				n.publish(ctx, ch[i][1], c.Power)
				n.publish(ctx, ch[i][2], c.Energy)
				n.publish(ctx, ch[i][3], c.PowerFactor)
			}
			return err
		},
	}, nil
}

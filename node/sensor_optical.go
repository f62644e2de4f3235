// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/max30105"
	"github.com/GermanBionicSystems/sensorhub/sink"
	"github.com/GermanBionicSystems/sensorhub/veml6075"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

func init() {
	platforms["veml6075"] = &platform{
		interval: 20 * time.Second,
		options:  []string{"integration_time", "high_dynamic", "force_mode"},
		outputs: map[string]output{
			"uva":      {unit: "counts", accuracy: 1},
			"uvb":      {unit: "counts", accuracy: 1},
			"uv_index": {unit: "UVI", accuracy: 5},
		},
		load: loadVEML6075,
	}
	count := output{accuracy: 1}
	platforms["max30105"] = &platform{
		interval: 20 * time.Second,
		options: []string{
			"mode", "adc_range", "sample_averaging", "sample_rate", "resolution",
			"led_current", "interrupts", "interrupt_pin", "proximity_threshold",
		},
		outputs: map[string]output{
			"temperature":           {unit: unitCelsius, class: "temperature", accuracy: 3},
			"led1":                  count,
			"led2":                  count,
			"led3":                  count,
			"fifo_overflow_counter": count,
			"wr_ptr":                count,
			"rd_ptr":                count,
			"power_ready":           {class: "power", binary: true},
			"has_target":            {class: "presence", binary: true},
			"alc_overflow":          {class: "light", binary: true},
			"data_ready":            {class: "power", binary: true},
			"fifo_full":             {class: "power", binary: true},
			"temp_ready":            {class: "power", binary: true},
		},
		load: loadMAX30105,
	}
}

func loadVEML6075(l *loader) (*device, error) {
	opts := veml6075.DefaultOpts
	if it := l.cfg.IntegrationTime; it != 0 {
		i := slices.IndexFunc([]veml6075.IntegrationTime{veml6075.IT50ms, veml6075.IT100ms, veml6075.IT200ms, veml6075.IT400ms, veml6075.IT800ms}, func(v veml6075.IntegrationTime) bool {
			return v.Duration() == it
		})
		if i < 0 {
			return nil, fmt.Errorf("invalid integration_time %s", it)
		}
		opts.IntegrationTime = veml6075.IntegrationTime(i)
	}
	if l.cfg.HighDynamic != nil {
		opts.HighDynamic = *l.cfg.HighDynamic
	}
	if l.cfg.ForceMode != nil {
		opts.ForceMode = *l.cfg.ForceMode
	}
	b, addr, err := l.i2c(veml6075.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := veml6075.NewI2C(b, addr, &opts)
	if err != nil {
		return nil, err
	}
	uva := l.entity("uva")
	uvb := l.entity("uvb")
	index := l.entity("uv_index")
	n := l.n
	return &device{
		r: d,
		poll: func(ctx context.Context) error {
			var e veml6075.Env
			if err := d.Sense(&e); err != nil {
				return err
			}
			n.publish(ctx, uva, e.UVA)
			n.publish(ctx, uvb, e.UVB)
			n.publish(ctx, index, e.Index)
			return nil
		},
	}, nil
}

// max30105Opts converts the sensor options.
func max30105Opts(l *loader) (*max30105.Opts, error) {
	opts := max30105.DefaultOpts
	c := l.cfg
	switch c.Mode {
	case "":
	case "red":
		opts.Mode = max30105.Red
	case "red_ir":
		opts.Mode = max30105.RedIR
	case "green_red_ir":
		opts.Mode = max30105.MultiLED
	default:
		return nil, fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.ADCRange != 0 {
		i := slices.Index([]int{2048, 4096, 8192, 16384}, c.ADCRange)
		if i < 0 {
			return nil, fmt.Errorf("invalid adc_range %d", c.ADCRange)
		}
		opts.ADCRange = max30105.ADCRange(i)
	}
	if c.SampleAveraging != 0 {
		i := slices.Index([]int{1, 2, 4, 8, 16, 32}, c.SampleAveraging)
		if i < 0 {
			return nil, fmt.Errorf("invalid sample_averaging %d", c.SampleAveraging)
		}
		opts.SampleAveraging = max30105.SampleAveraging(i)
	}
	if c.SampleRate != 0 {
		i := slices.Index([]int{50, 100, 200, 400, 800, 1000, 1600, 3200}, c.SampleRate)
		if i < 0 {
			return nil, fmt.Errorf("invalid sample_rate %d", c.SampleRate)
		}
		opts.SampleRate = max30105.SampleRate(i)
	}
	if c.Resolution != 0 {
		if c.Resolution < 15 || c.Resolution > 18 {
			return nil, fmt.Errorf("invalid resolution %d", c.Resolution)
		}
		opts.Resolution = max30105.Resolution(c.Resolution - 15)
	}
	for _, v := range []struct {
		src *int
		dst *uint8
	}{
		{c.LEDCurrent.Red, &opts.Current.Red},
		{c.LEDCurrent.IR, &opts.Current.IR},
		{c.LEDCurrent.Green, &opts.Current.Green},
		{c.LEDCurrent.Pilot, &opts.Current.Pilot},
	} {
		if v.src != nil {
			*v.dst = uint8(*v.src)
		}
	}
	for _, i := range c.Interrupts {
		switch i {
		case "fifo_almost_full":
			opts.Interrupts.FIFOAlmostFull = true
		case "data_ready":
			opts.Interrupts.DataReady = true
		case "alc_overflow":
			opts.Interrupts.ALCOverflow = true
		case "proximity":
			opts.Interrupts.Proximity = true
		case "temp_ready":
			opts.Interrupts.TemperatureReady = true
		default:
			return nil, fmt.Errorf("invalid interrupt %q", i)
		}
	}
	if c.ProximityThreshold != nil {
		opts.ProximityThreshold = uint8(*c.ProximityThreshold)
	}
	return &opts, nil
}

func loadMAX30105(l *loader) (*device, error) {
	opts, err := max30105Opts(l)
	if err != nil {
		return nil, err
	}
	var pin gpio.PinIn
	if l.cfg.InterruptPin != "" {
		if pin = gpioreg.ByName(l.cfg.InterruptPin); pin == nil {
			return nil, fmt.Errorf("unknown interrupt_pin %q", l.cfg.InterruptPin)
		}
	}
	b, addr, err := l.i2c(max30105.DefaultAddress)
	if err != nil {
		return nil, err
	}
	d, err := max30105.NewI2C(b, addr, opts)
	if err != nil {
		return nil, err
	}
	m := &maxDevice{
		n:      l.n,
		d:      d,
		temp:   l.entity("temperature"),
		ovf:    l.entity("fifo_overflow_counter"),
		wr:     l.entity("wr_ptr"),
		rd:     l.entity("rd_ptr"),
		leds:   [3]*sink.Entity{l.entity("led1"), l.entity("led2"), l.entity("led3")},
		usePin: pin != nil,
	}
	for i, k := range []string{"power_ready", "has_target", "alc_overflow", "data_ready", "fifo_full", "temp_ready"} {
		m.binary[i] = l.entity(k)
	}
	dev := &device{r: d, poll: m.poll}
	if pin != nil {
		if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return nil, err
		}
		dev.watch = func(ctx context.Context) {
			m.watch(ctx, pin, func(err error) { l.n.warn(dev, err) })
		}
	}
	return dev, nil
}

// maxDevice publishes a MAX30105's FIFO and interrupt flags.
type maxDevice struct {
	n      *Node
	d      *max30105.Dev
	temp   *sink.Entity
	leds   [3]*sink.Entity
	ovf    *sink.Entity
	wr     *sink.Entity
	rd     *sink.Entity
	binary [6]*sink.Entity
	usePin bool

	mu     sync.Mutex
	raised max30105.Flags
}

func (m *maxDevice) poll(ctx context.Context) error {
	var e max30105.Env
	if err := m.d.Sense(&e); err != nil {
		return err
	}
	if e.Samples != 0 {
		for i, l := range m.leds {
			m.n.publish(ctx, l, float64(e.LED[i]))
		}
	}
	m.n.publish(ctx, m.ovf, float64(e.Overflow))
	m.n.publish(ctx, m.wr, float64(e.WritePtr))
	m.n.publish(ctx, m.rd, float64(e.ReadPtr))

	m.mu.Lock()
	prev := m.raised
	m.raised = max30105.Flags{}
	m.mu.Unlock()
	// Flags raised since the last poll go back down.
	m.publishFlags(ctx, prev, false)
	if m.usePin {
		return nil
	}
	f, err := m.d.Interrupts()
	if err != nil {
		return err
	}
	return m.handle(ctx, f)
}

// watch reads the flags on every falling edge of pin until ctx is done.
func (m *maxDevice) watch(ctx context.Context, pin gpio.PinIn, warn func(error)) {
	defer func() {
		_ = pin.In(gpio.PullNoChange, gpio.NoEdge)
	}()
	for ctx.Err() == nil {
		if !pin.WaitForEdge(time.Second) {
			continue
		}
		f, err := m.d.Interrupts()
		if err == nil {
			err = m.handle(ctx, f)
		}
		if err != nil {
			warn(err)
		}
	}
}

// handle publishes the raised flags and the temperature when a conversion
// is done.
func (m *maxDevice) handle(ctx context.Context, f max30105.Flags) error {
	if !f.Any() {
		return nil
	}
	m.mu.Lock()
	r := &m.raised
	r.PowerReady = r.PowerReady || f.PowerReady
	r.Proximity = r.Proximity || f.Proximity
	r.ALCOverflow = r.ALCOverflow || f.ALCOverflow
	r.DataReady = r.DataReady || f.DataReady
	r.FIFOFull = r.FIFOFull || f.FIFOFull
	r.TemperatureReady = r.TemperatureReady || f.TemperatureReady
	m.mu.Unlock()
	m.publishFlags(ctx, f, true)
	if !f.TemperatureReady || m.temp == nil {
		return nil
	}
	t, err := m.d.Temperature()
	if err != nil {
		return fmt.Errorf("temperature: %w", err)
	}
	m.n.publish(ctx, m.temp, t.Celsius())
	return nil
}

// publishFlags publishes on for each flag set in f.
func (m *maxDevice) publishFlags(ctx context.Context, f max30105.Flags, on bool) {
	for i, set := range []bool{f.PowerReady, f.Proximity, f.ALCOverflow, f.DataReady, f.FIFOFull, f.TemperatureReady} {
		if set {
			m.n.publishBinary(ctx, m.binary[i], on)
		}
	}
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package node polls the configured sensors and publishes their values to
// sinks.
//
// Each device gets its own goroutine. A failed poll is logged and nothing is
// published for that cycle; the next poll happens at the next tick.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"github.com/GermanBionicSystems/sensorhub/node/config"
	"github.com/GermanBionicSystems/sensorhub/sink"
	"github.com/GermanBionicSystems/sensorhub/uartport"
	"github.com/maruel/natural"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/uart"
	"periph.io/x/conn/v3/uart/uartreg"
)

// New loads a configuration and starts polling the sensors.
//
// Sinks are not closed by the node.
func New(ctx context.Context, cfg *config.Root, sinks ...sink.Sink) (*Node, error) {
	n := &Node{
		cfg:   cfg,
		sinks: sinks,
		buses: map[string]i2c.BusCloser{},
		ports: map[string]uart.PortCloser{},
	}
	for i := range cfg.I2C {
		b, err := i2creg.Open(cfg.I2C[i].Bus)
		if err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("i2c(%s): %w", cfg.I2C[i].ID, err)
		}
		n.buses[cfg.I2C[i].ID] = b
	}
	for i := range cfg.UART {
		p, err := openUART(&cfg.UART[i])
		if err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("uart(%s): %w", cfg.UART[i].ID, err)
		}
		n.ports[cfg.UART[i].ID] = p
	}
	for i := range cfg.Sensors {
		if err := n.loadSensor(&cfg.Sensors[i]); err != nil {
			// Since we're partially initialized, take the time to close the
			// devices that were initialized.
			_ = n.Close()
			return nil, err
		}
	}
	ctx, n.cancel = context.WithCancel(ctx)
	for _, d := range n.devices {
		n.wg.Add(1)
		go n.run(ctx, d)
		if d.watch != nil {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				d.watch(ctx)
			}()
		}
	}
	return n, nil
}

// openUART makes the serial port available through uartreg and opens it. It
// is replaced in tests.
var openUART = func(u *config.UART) (uart.PortCloser, error) {
	opts := uartport.DefaultOpts
	if u.ReadTimeout != 0 {
		opts.ReadTimeout = u.ReadTimeout
	}
	if err := uartport.Register(u.ID, u.Port, &opts); err != nil {
		return nil, err
	}
	p, err := uartreg.Open(u.ID)
	if err != nil {
		_ = uartreg.Unregister(u.ID)
		return nil, err
	}
	return &registeredPort{PortCloser: p, name: u.ID}, nil
}

// registeredPort unregisters the port on Close so a new node can register it
// again.
type registeredPort struct {
	uart.PortCloser
	name string
}

func (r *registeredPort) Close() error {
	err := r.PortCloser.Close()
	if err2 := uartreg.Unregister(r.name); err == nil {
		err = err2
	}
	return err
}

// Node is the sensorhub node.
type Node struct {
	cfg   *config.Root
	sinks []sink.Sink

	buses    map[string]i2c.BusCloser
	ports    map[string]uart.PortCloser
	devices  []*device
	entities []*sink.Entity

	cancel func()
	wg     sync.WaitGroup
}

// Close stops polling, halts the devices and closes the buses.
func (n *Node) Close() error {
	// Has to handle partially initialized object when New() is failing.
	if n.cancel != nil {
		n.cancel()
	}
	if os.Getenv("GOTRACEBACK") == "all" {
		// This code exists to catch when there's a shutdown bug.
		t := time.AfterFunc(time.Minute, func() {
			panic("Took too long to shutdown, panicking")
		})
		n.wg.Wait()
		t.Stop()
	} else {
		n.wg.Wait()
	}
	var err error
	for _, d := range n.devices {
		slog.Debug("halting", "device", d.name)
		if err2 := d.r.Halt(); err == nil {
			err = err2
		}
	}
	for _, c := range n.closers() {
		if err2 := c.Close(); err == nil {
			err = err2
		}
	}
	return err
}

func (n *Node) closers() []io.Closer {
	var out []io.Closer
	for _, b := range n.buses {
		out = append(out, b)
	}
	for _, p := range n.ports {
		out = append(out, p)
	}
	return out
}

// Entities returns the attached entities in natural order of their names.
func (n *Node) Entities() []sink.Entity {
	return sortEntities(n.entities)
}

// ListEntities returns the entities cfg attaches, in natural order of their
// names, without opening any bus.
func ListEntities(cfg *config.Root) ([]sink.Entity, error) {
	var all []*sink.Entity
	for i := range cfg.Sensors {
		c := &cfg.Sensors[i]
		p := platforms[c.Platform]
		if p == nil {
			return nil, fmt.Errorf("unknown platform %q", c.Platform)
		}
		l := &loader{cfg: c, p: p}
		if err := l.check(); err != nil {
			return nil, fmt.Errorf("sensor(%s): %w", c.Platform, err)
		}
		for k := range c.Outputs {
			l.entity(k)
		}
		all = append(all, l.attached...)
	}
	return sortEntities(all), nil
}

func sortEntities(entities []*sink.Entity) []sink.Entity {
	out := make([]sink.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return natural.Less(out[i].Name, out[j].Name)
	})
	return out
}

// device is one polled peripheral.
type device struct {
	name     string
	platform string
	r        conn.Resource
	interval time.Duration
	// poll reads the device and publishes its values.
	poll func(ctx context.Context) error
	// run replaces the ticker loop when set. It must return when ctx is
	// done.
	run func(ctx context.Context)
	// watch runs beside the ticker loop when set. It must return when ctx is
	// done.
	watch func(ctx context.Context)
	// setup initializes the device when set. It is tried at load and again
	// before each poll until it succeeds; the returned resource replaces r.
	setup func() (conn.Resource, error)
}

func (n *Node) run(ctx context.Context, d *device) {
	defer n.wg.Done()
	if d.run != nil {
		for d.setup != nil {
			if err := n.setup(d); err != nil {
				n.warn(d, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(d.interval):
				}
			}
		}
		d.run(ctx)
		return
	}
	n.poll(ctx, d)
	t := time.NewTicker(d.interval)
	defer t.Stop()
	done := ctx.Done()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			n.poll(ctx, d)
		}
	}
}

func (n *Node) poll(ctx context.Context, d *device) {
	if d.setup != nil {
		if err := n.setup(d); err != nil {
			n.warn(d, err)
			return
		}
	}
	if err := d.poll(ctx); err != nil {
		n.warn(d, err)
	}
}

// setup runs d.setup and clears it on success.
func (n *Node) setup(d *device) error {
	r, err := d.setup()
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	d.r = r
	d.setup = nil
	if d.name != "" {
		slog.Info("setup done", "sensor", d.name, "platform", d.platform)
	}
	return nil
}

func (n *Node) warn(d *device, err error) {
	slog.Warn("poll failed", "sensor", d.name, "platform", d.platform, "reason", reason(err), "err", err)
}

// reason classifies a driver error for the log.
func reason(err error) string {
	var c *common.ChecksumError
	switch {
	case errors.As(err, &c):
		return "checksum"
	case errors.Is(err, common.ErrFrame):
		return "frame"
	case errors.Is(err, common.ErrNotReady):
		return "not ready"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "timeout"
	default:
		return "i/o"
	}
}

// publish sends v to every sink. It is a no-op when e is not attached or v
// is not a number.
func (n *Node) publish(ctx context.Context, e *sink.Entity, v float64) {
	if e == nil || math.IsNaN(v) {
		return
	}
	n.send(ctx, sink.State{Entity: *e, Value: v, Time: time.Now()})
}

// publishBinary sends on to every sink. It is a no-op when e is not attached.
func (n *Node) publishBinary(ctx context.Context, e *sink.Entity, on bool) {
	if e == nil {
		return
	}
	n.send(ctx, sink.State{Entity: *e, On: on, Time: time.Now()})
}

func (n *Node) send(ctx context.Context, s sink.State) {
	slog.Debug("publish", "entity", s.Entity.Name, "value", sink.Format(s))
	for _, k := range n.sinks {
		if err := k.Publish(ctx, s); err != nil {
			slog.Warn("publish failed", "entity", s.Entity.Name, "err", err)
		}
	}
}

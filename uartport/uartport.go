// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uartport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/uart"
	"periph.io/x/conn/v3/uart/uartreg"
)

// Opts holds the port settings that are not negotiated by the device
// driver.
type Opts struct {
	// ReadTimeout bounds how long Tx waits for the answer.
	ReadTimeout time.Duration
	// MaxSpeed caps the speed requested by the driver. 0 means no cap.
	MaxSpeed physic.Frequency
}

// DefaultOpts is used when nil is passed to Open or Register.
var DefaultOpts = Opts{
	ReadTimeout: time.Second,
}

// port is the subset of serial.Port in use.
type port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// open is replaced in tests.
var open = func(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// Port is a serial port. It implements uart.PortCloser.
type Port struct {
	name string
	opts Opts

	mu        sync.Mutex
	p         port
	limit     physic.Frequency
	connected bool
}

// Open opens the serial device at path.
//
// The line settings are applied later by Connect.
func Open(path string, opts *Opts) (*Port, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ReadTimeout <= 0 {
		return nil, fmt.Errorf("uartport: %s: invalid read timeout %s", path, opts.ReadTimeout)
	}
	p, err := open(path, &serial.Mode{BaudRate: 9600, DataBits: 8})
	if err != nil {
		return nil, fmt.Errorf("uartport: %w", err)
	}
	return &Port{name: path, opts: *opts, p: p, limit: opts.MaxSpeed}, nil
}

// Register makes the serial device at path available as name through
// uartreg.Open. The device is only opened when uartreg.Open is called.
func Register(name, path string, opts *Opts) error {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	return uartreg.Register(name, nil, -1, func() (uart.PortCloser, error) {
		return Open(path, &o)
	})
}

func (p *Port) String() string {
	return p.name
}

// Close closes the serial device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.p.Close()
}

// LimitSpeed implements uart.PortCloser.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("uartport: %s: invalid speed %s", p.name, f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = f
	return nil
}

// Connect implements uart.Port.
//
// Only 5 to 8 bits per character and no flow control are supported.
func (p *Port) Connect(f physic.Frequency, stopBit uart.Stop, parity uart.Parity, flow uart.Flow, bits int) (conn.Conn, error) {
	if f < physic.Hertz {
		return nil, fmt.Errorf("uartport: %s: invalid speed %s", p.name, f)
	}
	if flow != uart.NoFlow {
		return nil, fmt.Errorf("uartport: %s: flow control %s is not supported", p.name, flow)
	}
	if bits < 5 || bits > 8 {
		return nil, fmt.Errorf("uartport: %s: invalid bits per character %d", p.name, bits)
	}
	mode := serial.Mode{DataBits: bits}
	switch stopBit {
	case uart.One:
		mode.StopBits = serial.OneStopBit
	case uart.OneHalf:
		mode.StopBits = serial.OnePointFiveStopBits
	case uart.Two:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("uartport: %s: invalid stop bit %d", p.name, stopBit)
	}
	switch parity {
	case uart.NoParity:
		mode.Parity = serial.NoParity
	case uart.Odd:
		mode.Parity = serial.OddParity
	case uart.Even:
		mode.Parity = serial.EvenParity
	case uart.Mark:
		mode.Parity = serial.MarkParity
	case uart.Space:
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("uartport: %s: invalid parity %q", p.name, byte(parity))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil, errors.New("uartport: " + p.name + ": already connected")
	}
	if p.limit != 0 && p.limit < f {
		f = p.limit
	}
	mode.BaudRate = int(f / physic.Hertz)
	if err := p.p.SetMode(&mode); err != nil {
		return nil, fmt.Errorf("uartport: %s: %w", p.name, err)
	}
	if err := p.p.SetReadTimeout(p.opts.ReadTimeout); err != nil {
		return nil, fmt.Errorf("uartport: %s: %w", p.name, err)
	}
	p.connected = true
	return &portConn{p: p, baud: mode.BaudRate}, nil
}

// portConn is the conn.Conn handed to device drivers.
type portConn struct {
	p    *Port
	baud int
}

func (c *portConn) String() string {
	return fmt.Sprintf("%s@%d", c.p.name, c.baud)
}

func (c *portConn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx writes w then reads until r is full.
//
// The port returns no data once the read timeout expires, which is reported
// as an error wrapping io.ErrUnexpectedEOF.
func (c *portConn) Tx(w, r []byte) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	for len(w) != 0 {
		n, err := c.p.p.Write(w)
		if err != nil {
			return fmt.Errorf("uartport: %s: write: %w", c.p.name, err)
		}
		w = w[n:]
	}
	for got := 0; got < len(r); {
		n, err := c.p.p.Read(r[got:])
		if err != nil {
			return fmt.Errorf("uartport: %s: read: %w", c.p.name, err)
		}
		if n == 0 {
			return fmt.Errorf("uartport: %s: read %d of %d bytes: %w", c.p.name, got, len(r), io.ErrUnexpectedEOF)
		}
		got += n
	}
	return nil
}

// ResetInputBuffer discards received bytes that were not read yet.
func (c *portConn) ResetInputBuffer() error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	return c.p.p.ResetInputBuffer()
}

var _ uart.PortCloser = &Port{}
var _ conn.Conn = &portConn{}

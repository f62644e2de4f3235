// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package console implements a sink.Sink that prints each state on the
// terminal (stdout) using ANSI color codes.
//
// Each line starts with a color block showing where the value sits within
// the range seen so far for this entity, from green at the minimum to red
// at the maximum.
package console

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/GermanBionicSystems/sensorhub/sink"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Opts represents the options available for the console.
type Opts struct {
	// W defaults to the colorable stdout.
	W       io.Writer
	Palette *ansi256.Palette

	_ struct{}
}

// Sink prints the states to the console.
type Sink struct {
	w       io.Writer
	palette ansi256.Palette

	mu     sync.Mutex
	ranges map[string]valueRange
	buf    bytes.Buffer
}

type valueRange struct {
	min, max float64
}

// New returns a Sink that prints at the console.
func New(opts *Opts) *Sink {
	if opts == nil {
		opts = &Opts{}
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Sink{w: w, palette: *p, ranges: map[string]valueRange{}}
}

func (s *Sink) String() string {
	return "Console"
}

// Publish implements sink.Sink.
func (s *Sink) Publish(ctx context.Context, st sink.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.color(&st)
	// This code is designed to minimize the amount of memory allocated per call.
	s.buf.Reset()
	_, _ = s.buf.WriteString("\r\033[0m")
	_, _ = io.WriteString(&s.buf, s.palette.Block(c))
	_, _ = s.buf.WriteString("\033[0m ")
	_, _ = fmt.Fprintf(&s.buf, "%s %s\n", st.Time.Format("15:04:05"), st.String())
	_, err := s.buf.WriteTo(s.w)
	return err
}

// Close implements io.Closer.
//
// It resets the terminal colors.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write([]byte("\033[0m"))
	return err
}

// color returns the color for the state and updates the entity range.
func (s *Sink) color(st *sink.State) color.NRGBA {
	if st.Entity.Binary {
		if st.On {
			return color.NRGBA{G: 255, A: 255}
		}
		return color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	}
	r, ok := s.ranges[st.Entity.ObjectID]
	if !ok {
		r = valueRange{st.Value, st.Value}
	}
	r.min = min(r.min, st.Value)
	r.max = max(r.max, st.Value)
	s.ranges[st.Entity.ObjectID] = r
	f := 0.
	if r.max > r.min {
		f = (st.Value - r.min) / (r.max - r.min)
	}
	return color.NRGBA{R: uint8(255 * f), G: uint8(255 * (1 - f)), A: 255}
}

var _ sink.Sink = &Sink{}
var _ fmt.Stringer = &Sink{}

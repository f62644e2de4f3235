// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package snapshot implements a sink.Sink that renders the latest state of
// every entity as a PNG dashboard.
//
// The file is replaced atomically so a web server or a display loop can
// read it at any time.
package snapshot

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/GermanBionicSystems/sensorhub/sink"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/maruel/natural"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Opts holds the rendering options.
type Opts struct {
	// Title is drawn at the top, usually the node name.
	Title         string
	Width, Height int
	// UpdateInterval is the minimum delay between two writes.
	UpdateInterval time.Duration

	_ struct{}
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Width: 480, Height: 320, UpdateInterval: 10 * time.Second}

// New returns a Sink writing to path.
func New(path string, opts *Opts) (*Sink, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if path == "" {
		return nil, errors.New("snapshot: path is required")
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	s := &Sink{
		path:   path,
		opts:   *opts,
		states: map[string]sink.State{},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if s.opts.Width <= 0 {
		s.opts.Width = DefaultOpts.Width
	}
	if s.opts.Height <= 0 {
		s.opts.Height = DefaultOpts.Height
	}
	if s.opts.UpdateInterval <= 0 {
		s.opts.UpdateInterval = DefaultOpts.UpdateInterval
	}
	s.title = truetype.NewFace(f, &truetype.Options{Size: 20})
	s.face = truetype.NewFace(f, &truetype.Options{Size: 14})
	go s.loop()
	return s, nil
}

// Sink keeps the latest state per entity.
type Sink struct {
	path  string
	opts  Opts
	title font.Face
	face  font.Face

	mu     sync.Mutex
	states map[string]sink.State
	dirty  bool
	stop   chan struct{}
	done   chan struct{}
}

func (s *Sink) String() string {
	return "snapshot(" + s.path + ")"
}

// Publish implements sink.Sink.
func (s *Sink) Publish(ctx context.Context, st sink.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.Entity.ObjectID] = st
	s.dirty = true
	return nil
}

// Close writes the pending states and stops the update loop.
func (s *Sink) Close() error {
	close(s.stop)
	<-s.done
	return s.flush()
}

func (s *Sink) loop() {
	defer close(s.done)
	t := time.NewTicker(s.opts.UpdateInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			// Errors are reported again on the next tick and on Close.
			_ = s.flush()
		}
	}
}

// flush renders and writes the snapshot if a state changed.
func (s *Sink) flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.dirty = false
	rows := s.rows()
	s.mu.Unlock()
	if err := s.write(s.render(rows)); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

// rows returns the states sorted in natural order of the entity names.
func (s *Sink) rows() []sink.State {
	out := make([]sink.State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return natural.Less(out[i].Entity.Name, out[j].Entity.Name)
	})
	return out
}

func (s *Sink) render(rows []sink.State) *gg.Context {
	const padding = 8.
	w := float64(s.opts.Width)
	dc := gg.NewContext(s.opts.Width, s.opts.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	dc.SetFontFace(s.title)
	y := padding
	if s.opts.Title != "" {
		_, th := dc.MeasureString(s.opts.Title)
		dc.DrawStringAnchored(s.opts.Title, padding, y, 0, 1)
		y += th + padding
		dc.DrawLine(padding, y, w-padding, y)
		dc.Stroke()
		y += padding
	}
	dc.SetFontFace(s.face)
	_, lh := dc.MeasureString("Hg")
	for _, st := range rows {
		if y+lh > float64(s.opts.Height) {
			break
		}
		value := sink.Format(st)
		if st.Entity.Unit != "" && !st.Entity.Binary {
			value += " " + st.Entity.Unit
		}
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(st.Entity.Name, padding, y, 0, 1)
		if st.Entity.Binary && st.On {
			dc.SetRGB(0, 0.6, 0)
		}
		dc.DrawStringAnchored(value, w-padding, y, 1, 1)
		y += lh * 1.5
	}
	return dc
}

// write replaces the file atomically.
func (s *Sink) write(dc *gg.Context) error {
	f, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.png")
	if err != nil {
		return err
	}
	tmp := f.Name()
	err = dc.EncodePNG(f)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(tmp, s.path)
	}
	if err != nil {
		_ = os.Remove(tmp)
	}
	return err
}

var _ sink.Sink = &Sink{}

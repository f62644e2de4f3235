// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sink defines where the node publishes sensor states.
//
// Implementations live in the subpackages.
package sink

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Sink receives every state published by the node.
//
// Publish may be called concurrently from multiple device goroutines.
type Sink interface {
	io.Closer
	Publish(ctx context.Context, s State) error
}

// Entity describes a published value.
type Entity struct {
	// Name is the human readable name.
	Name string
	// ObjectID is Name reduced to [a-z0-9_-].
	ObjectID    string
	Unit        string
	DeviceClass string
	// Accuracy is the number of decimals to render.
	Accuracy int
	// Binary is set for on/off values.
	Binary bool
}

// State is one value of an entity.
type State struct {
	Entity Entity
	// Value is used when Entity.Binary is false.
	Value float64
	// On is used when Entity.Binary is true.
	On   bool
	Time time.Time
}

func (s *State) String() string {
	if s.Entity.Unit == "" || s.Entity.Binary {
		return s.Entity.Name + ": " + Format(*s)
	}
	return s.Entity.Name + ": " + Format(*s) + " " + s.Entity.Unit
}

// Format renders the value with the entity's number of decimals, or ON/OFF
// for binary entities.
func Format(s State) string {
	if s.Entity.Binary {
		if s.On {
			return "ON"
		}
		return "OFF"
	}
	return strconv.FormatFloat(s.Value, 'f', s.Entity.Accuracy, 64)
}

// ObjectID reduces name to lower case letters, digits, '-' and '_'. Spaces
// become '_'.
func ObjectID(name string) string {
	return strings.Map(func(r rune) rune {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r == '-' || r == '_' {
			return r
		}
		if 'A' <= r && r <= 'Z' {
			return unicode.ToLower(r)
		}
		if r == ' ' {
			return '_'
		}
		return -1
	}, name)
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/GermanBionicSystems/sensorhub/node"
	"github.com/GermanBionicSystems/sensorhub/node/config"
	"github.com/GermanBionicSystems/sensorhub/sink"
	"github.com/GermanBionicSystems/sensorhub/sink/console"
	"github.com/GermanBionicSystems/sensorhub/sink/mqttsink"
	"github.com/GermanBionicSystems/sensorhub/sink/snapshot"
)

// newSinks creates the configured sinks. The console is used when nothing
// else is configured.
func newSinks(cfg *config.Root) ([]sink.Sink, error) {
	var out []sink.Sink
	if cfg.MQTT.Broker != "" {
		opts := mqttsink.DefaultOpts
		opts.Node = cfg.Node.Name
		opts.Discovery = cfg.MQTT.Discovery
		opts.Retain = cfg.MQTT.Retain
		s, err := mqttsink.New(cfg.MQTT.Broker, &opts)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if cfg.Snapshot.Path != "" {
		opts := snapshot.DefaultOpts
		opts.Title = cfg.Node.Name
		if cfg.Snapshot.Width != 0 {
			opts.Width = cfg.Snapshot.Width
		}
		if cfg.Snapshot.Height != 0 {
			opts.Height = cfg.Snapshot.Height
		}
		if cfg.Snapshot.UpdateInterval != 0 {
			opts.UpdateInterval = cfg.Snapshot.UpdateInterval
		}
		s, err := snapshot.New(cfg.Snapshot.Path, &opts)
		if err != nil {
			closeSinks(out)
			return nil, err
		}
		out = append(out, s)
	}
	if cfg.Console.Enabled || len(out) == 0 {
		out = append(out, console.New(nil))
	}
	return out, nil
}

func closeSinks(sinks []sink.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			slog.Warn("closing sink", "sink", s, "err", err)
		}
	}
}

func run(ctx context.Context, cfg *config.Root) error {
	sinks, err := newSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks(sinks)
	n, err := node.New(ctx, cfg, sinks...)
	if err != nil {
		return err
	}
	slog.Info("node initialized", "name", cfg.Node.Name, "entities", len(n.Entities()))
	<-ctx.Done()
	slog.Info("closing node")
	return n.Close()
}

// listEntities prints the entities of the configuration.
func listEntities(cfg *config.Root) error {
	entities, err := node.ListEntities(cfg)
	if err != nil {
		return err
	}
	for _, e := range entities {
		kind := "sensor"
		if e.Binary {
			kind = "binary_sensor"
		}
		fmt.Fprintf(os.Stdout, "%-13s %-32s %s\n", kind, e.ObjectID, e.Unit)
	}
	return nil
}

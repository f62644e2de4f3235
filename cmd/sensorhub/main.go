// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// sensorhub polls the sensors listed in a YAML configuration and publishes
// their values to MQTT, the console or a PNG snapshot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GermanBionicSystems/sensorhub/node/config"
	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"periph.io/x/host/v3"
)

// autoCancellingContext returns a global context that is canceled if SIGTERM /
// SIGINT is received or if the executable or the configuration file is
// modified.
func autoCancellingContext(cfg string) (context.Context, func(), error) {
	// Cancel on SIGTERM / SIGINT.
	ctx, cancel := context.WithCancel(context.Background())
	chanSignal := make(chan os.Signal, 1)
	go func() {
		<-chanSignal
		cancel()
	}()
	signal.Notify(chanSignal, os.Interrupt, syscall.SIGTERM)

	exe, err := os.Executable()
	if err != nil {
		return ctx, cancel, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ctx, cancel, err
	}

	lookup := map[string]time.Time{}
	for _, n := range []string{exe, cfg} {
		var fi os.FileInfo
		fi, err = os.Stat(n)
		if err != nil {
			_ = watcher.Close()
			return ctx, cancel, err
		}
		if err = watcher.Add(n); err != nil {
			_ = watcher.Close()
			return ctx, cancel, err
		}
		mod := fi.ModTime()
		lookup[n] = mod
		slog.Debug("watching", "path", n, "mod", mod)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-watcher.Errors:
				slog.Error("got error while watching for file changes, exiting", "err", err)
				cancel()
				return
			case e := <-watcher.Events:
				if fi2, err2 := os.Stat(e.Name); err2 != nil {
					slog.Info("file doesn't exist anymore, ignoring", "path", e.Name)
				} else if mod := fi2.ModTime(); !mod.Equal(lookup[e.Name]) {
					slog.Info("file was modified, exiting", "path", e.Name)
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel, nil
}

// setupLogging sets the default slog logger. Colors are only used on a
// terminal.
func setupLogging(level string) {
	l := slog.LevelInfo
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	tty := isatty.IsTerminal(os.Stderr.Fd())
	opts := &tint.Options{Level: l, TimeFormat: time.TimeOnly, NoColor: !tty}
	if !tty {
		// The service manager already annotates the lines.
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorableStderr(), opts)))
}

func mainImpl() error {
	flag.Usage = func() {
		o := flag.CommandLine.Output()
		fmt.Fprintf(o, "usage: %s [flags] <config.yaml>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	list := flag.Bool("list", false, "print the configured entities and exit")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()
	if flag.NArg() != 1 {
		return errors.New("expect 1 argument. Use -help for more information")
	}

	// Change configFile to absolute path right away to simplify our life later
	// on.
	configFile, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		return err
	}
	/* #nosec G304 */
	b, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	cfg := config.Root{}
	if err := cfg.LoadYaml(b); err != nil {
		return err
	}
	if *verbose {
		cfg.Logger.Level = "debug"
	}
	setupLogging(cfg.Logger.Level)
	if cfg.Node.Name == "" {
		if cfg.Node.Name, err = os.Hostname(); err != nil {
			return err
		}
	}

	if *list {
		return listEntities(&cfg)
	}
	// Make sure periph can be initialized, otherwise there isn't much to do.
	if _, err := host.Init(); err != nil {
		return err
	}
	ctx, cancel, err := autoCancellingContext(configFile)
	defer cancel()
	if err != nil {
		return err
	}
	return run(ctx, &cfg)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "sensorhub: %s.\n", err)
		os.Exit(1)
	}
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/sensorhub/common"
	"github.com/GermanBionicSystems/sensorhub/max30105"
	"github.com/GermanBionicSystems/sensorhub/node/config"
	"github.com/GermanBionicSystems/sensorhub/sink"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/uart"
)

const sampleConf = `
i2c:
  - id: bus1
    bus: nodetest
uart:
  - id: u0
    port: /dev/ttyUSB0
sensor:
  - platform: dht30
    name: Room
    i2c_id: bus1
    update_interval: 1h
    temperature:
      name: Temperature
    humidity:
      name: Humidity
  - platform: kanfurco2
    uart_id: u0
    update_interval: 1h
    co2:
      name: CO2
`

func TestNode(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x38, W: []byte{0xac, 0x33, 0x00}},
			{Addr: 0x38, R: []byte{0x18, 0x75, 0x52, 0x05, 0x8e, 0x40, 0x7f}},
		},
		DontPanic: true,
	}
	registerBus(t, "nodetest", bus)
	port := &fakePort{
		Playback: conntest.Playback{
			Ops: []conntest.IO{
				{W: []byte{0x11, 0x01, 0x1e, 0xd0}, R: []byte{0x16, 0x0c, 0x1e, 0x43, 0x4d, 0x20, 0x56, 0x31, 0x2e, 0x30, 0x2e, 0x35, 0x00, 0x00, 0xc8}},
				{W: []byte{0x11, 0x01, 0x1f, 0xcf}, R: []byte{0x16, 0x06, 0x1f, 0x41, 0x31, 0x32, 0x33, 0x34, 0xba}},
				{W: []byte{0x11, 0x07, 0x10, 0x64, 0x00, 0x07, 0x01, 0x90, 0x64, 0x78}, R: []byte{0x16, 0x01, 0x10, 0xd9}},
				{W: []byte{0x11, 0x01, 0x01, 0xed}, R: []byte{0x16, 0x05, 0x01, 0x02, 0x58, 0x00, 0x00, 0x8a}},
			},
			DontPanic: true,
		},
	}
	useUART(t, map[string]*fakePort{"u0": port})

	cfg := config.Root{}
	if err := cfg.LoadYaml([]byte(sampleConf)); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{ch: make(chan sink.State, 16)}
	n, err := New(context.Background(), &cfg, rec)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for range 3 {
		select {
		case s := <-rec.ch:
			got[s.Entity.Name] = sink.Format(s)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out; got %v", got)
		}
	}
	want := map[string]string{
		"Room Temperature": "19.45",
		"Room Humidity":    "45.83",
		"CO2":              "600",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	wantEntities := []sink.Entity{
		{Name: "CO2", ObjectID: "co2", Unit: "ppm", DeviceClass: "carbon_dioxide"},
		{Name: "Room Humidity", ObjectID: "room_humidity", Unit: "%", DeviceClass: "humidity", Accuracy: 2},
		{Name: "Room Temperature", ObjectID: "room_temperature", Unit: "°C", DeviceClass: "temperature", Accuracy: 2},
	}
	if diff := cmp.Diff(wantEntities, n.Entities()); diff != "" {
		t.Errorf("entities mismatch (-want +got):\n%s", diff)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if port.speed != 9600*physic.Hertz {
		t.Fatalf("connected at %s", port.speed)
	}
}

func TestSetupRetry(t *testing.T) {
	port := &fakePort{
		Playback: conntest.Playback{
			Ops: []conntest.IO{
				// The first version query gets garbage; the sensor is still
				// warming up.
				{W: []byte{0x11, 0x01, 0x1e, 0xd0}, R: make([]byte, 15)},
				{W: []byte{0x11, 0x01, 0x1e, 0xd0}, R: []byte{0x16, 0x0c, 0x1e, 0x43, 0x4d, 0x20, 0x56, 0x31, 0x2e, 0x30, 0x2e, 0x35, 0x00, 0x00, 0xc8}},
				{W: []byte{0x11, 0x01, 0x1f, 0xcf}, R: []byte{0x16, 0x06, 0x1f, 0x41, 0x31, 0x32, 0x33, 0x34, 0xba}},
				{W: []byte{0x11, 0x07, 0x10, 0x64, 0x00, 0x07, 0x01, 0x90, 0x64, 0x78}, R: []byte{0x16, 0x01, 0x10, 0xd9}},
				{W: []byte{0x11, 0x01, 0x01, 0xed}, R: []byte{0x16, 0x05, 0x01, 0x02, 0x58, 0x00, 0x00, 0x8a}},
			},
			DontPanic: true,
		},
	}
	useUART(t, map[string]*fakePort{"u0": port})
	cfg := config.Root{
		UART: []config.UART{{ID: "u0", Port: "/dev/ttyUSB0"}},
		Sensors: []config.Sensor{{
			Platform:       "kanfurco2",
			UARTID:         "u0",
			UpdateInterval: time.Hour,
			Outputs:        map[string]config.Output{"co2": {Name: "CO2"}},
		}},
	}
	rec := &recorder{ch: make(chan sink.State, 4)}
	n, err := New(context.Background(), &cfg, rec)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-rec.ch:
		if got := sink.Format(s); s.Entity.Name != "CO2" || got != "600" {
			t.Fatalf("unexpected %s = %s", s.Entity.Name, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSetupPending(t *testing.T) {
	calls := 0
	d := &device{
		r: &pending{name: "x: y"},
		setup: func() (conn.Resource, error) {
			if calls++; calls == 1 {
				return nil, common.ErrNotReady
			}
			return &pending{name: "x: ready"}, nil
		},
		poll: func(ctx context.Context) error { return nil },
	}
	n := &Node{}
	if err := n.setup(d); !errors.Is(err, common.ErrNotReady) {
		t.Fatalf("unexpected %v", err)
	}
	if d.setup == nil || d.r.String() != "x: y" {
		t.Fatal("failed setup must be kept for retry")
	}
	n.poll(context.Background(), d)
	if d.setup != nil || d.r.String() != "x: ready" || calls != 2 {
		t.Fatalf("setup not retried: %d %s", calls, d.r)
	}
}

func TestListEntities(t *testing.T) {
	cfg := config.Root{}
	if err := cfg.LoadYaml([]byte(sampleConf)); err != nil {
		t.Fatal(err)
	}
	// No bus is registered: nothing is opened.
	got, err := ListEntities(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []sink.Entity{
		{Name: "CO2", ObjectID: "co2", Unit: "ppm", DeviceClass: "carbon_dioxide"},
		{Name: "Room Humidity", ObjectID: "room_humidity", Unit: "%", DeviceClass: "humidity", Accuracy: 2},
		{Name: "Room Temperature", ObjectID: "room_temperature", Unit: "°C", DeviceClass: "temperature", Accuracy: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entities mismatch (-want +got):\n%s", diff)
	}
	cfg.Sensors[0].Outputs["co3"] = config.Output{Name: "x"}
	if _, err := ListEntities(&cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_Err(t *testing.T) {
	yes := true
	data := []struct {
		name string
		s    config.Sensor
		want string
	}{
		{"platform", config.Sensor{Platform: "bme280"}, `unknown platform "bme280"`},
		{"output", config.Sensor{Platform: "dht30", Outputs: map[string]config.Output{"co3": {Name: "x"}}}, "unknown option or output co3"},
		{"option", config.Sensor{Platform: "dht30", Mode: "fast", ForceMode: &yes}, "unsupported option force_mode, mode"},
		{"uart", config.Sensor{Platform: "wsz"}, "uart_id is required"},
		{"i2c", config.Sensor{Platform: "dht30", UARTID: "u0"}, "uart_id and baud are not supported"},
		{"bus", config.Sensor{Platform: "dht30"}, "i2c_id is required"},
		{"acd gas", config.Sensor{Platform: "acd", Variant: "acd4100", Outputs: map[string]config.Output{"co2": {Name: "CO2"}, "r32": {Name: "R32"}}}, "ACD4100 only reports r32, remove co2"},
		{"acd other gas", config.Sensor{Platform: "acd", Outputs: map[string]config.Output{"r32": {Name: "R32"}}}, "ACD1100 only reports co2, remove r32"},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			cfg := config.Root{Sensors: []config.Sensor{line.s}}
			_, err := New(context.Background(), &cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), line.want) {
				t.Fatalf("%q doesn't contain %q", err, line.want)
			}
		})
	}
}

func TestPublish(t *testing.T) {
	rec := &recorder{ch: make(chan sink.State, 4)}
	n := &Node{sinks: []sink.Sink{rec, &failing{}}}
	e := &sink.Entity{Name: "x"}
	ctx := context.Background()
	n.publish(ctx, nil, 1)
	n.publish(ctx, e, math.NaN())
	n.publish(ctx, e, 2)
	n.publishBinary(ctx, nil, true)
	if len(rec.ch) != 1 {
		t.Fatalf("got %d states", len(rec.ch))
	}
	if s := <-rec.ch; s.Value != 2 || s.Time.IsZero() {
		t.Fatalf("unexpected %v", s)
	}
}

func TestReason(t *testing.T) {
	data := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", &common.ChecksumError{Got: 1, Want: 2}), "checksum"},
		{fmt.Errorf("x: %w", common.ErrFrame), "frame"},
		{fmt.Errorf("x: %w", common.ErrNotReady), "not ready"},
		{fmt.Errorf("x: %w", io.ErrUnexpectedEOF), "timeout"},
		{io.EOF, "i/o"},
	}
	for _, line := range data {
		if got := reason(line.err); got != line.want {
			t.Errorf("reason(%v) = %q, want %q", line.err, got, line.want)
		}
	}
}

func TestMAX30105Flags(t *testing.T) {
	rec := &recorder{ch: make(chan sink.State, 8)}
	n := &Node{sinks: []sink.Sink{rec}}
	m := &maxDevice{n: n}
	for i := range m.binary {
		m.binary[i] = &sink.Entity{Name: fmt.Sprintf("flag%d", i), Binary: true}
	}
	ctx := context.Background()
	if err := m.handle(ctx, max30105.Flags{DataReady: true, Proximity: true}); err != nil {
		t.Fatal(err)
	}
	var got []string
	for len(rec.ch) != 0 {
		s := <-rec.ch
		got = append(got, s.Entity.Name+"="+sink.Format(s))
	}
	if diff := cmp.Diff([]string{"flag1=ON", "flag3=ON"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if !m.raised.DataReady || !m.raised.Proximity || m.raised.FIFOFull {
		t.Fatalf("raised %+v", m.raised)
	}
	if err := m.handle(ctx, max30105.Flags{}); err != nil || len(rec.ch) != 0 {
		t.Fatal("no flag should publish nothing", err)
	}
}

func TestOptions(t *testing.T) {
	red := 10
	l := &loader{cfg: &config.Sensor{
		Platform:        "max30105",
		Mode:            "red_ir",
		ADCRange:        4096,
		SampleAveraging: 4,
		SampleRate:      400,
		Resolution:      16,
		LEDCurrent:      config.LEDCurrent{Red: &red},
		Interrupts:      []string{"proximity", "temp_ready"},
	}}
	opts, err := max30105Opts(l)
	if err != nil {
		t.Fatal(err)
	}
	want := max30105.DefaultOpts
	want.Mode = max30105.RedIR
	want.ADCRange = max30105.ADC4096
	want.SampleAveraging = max30105.Avg4
	want.SampleRate = max30105.Rate400
	want.Resolution = max30105.Res16Bit
	want.Current.Red = 10
	want.Interrupts = max30105.Interrupts{Proximity: true, TemperatureReady: true}
	if diff := cmp.Diff(want, *opts); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	l.cfg.SampleRate = 123
	if _, err := max30105Opts(l); err == nil {
		t.Fatal("expected error")
	}
}

//

type recorder struct {
	ch chan sink.State
}

func (r *recorder) Publish(ctx context.Context, s sink.State) error {
	r.ch <- s
	return nil
}

func (r *recorder) Close() error {
	return nil
}

type failing struct{}

func (f *failing) Publish(ctx context.Context, s sink.State) error {
	return io.ErrClosedPipe
}

func (f *failing) Close() error {
	return nil
}

// fakePort is an uart.PortCloser returning its playback on Connect.
type fakePort struct {
	conntest.Playback
	speed physic.Frequency
}

func (f *fakePort) Connect(freq physic.Frequency, stopBit uart.Stop, parity uart.Parity, flow uart.Flow, bits int) (conn.Conn, error) {
	f.speed = freq
	return &f.Playback, nil
}

func (f *fakePort) LimitSpeed(freq physic.Frequency) error {
	return nil
}

func registerBus(t *testing.T, name string, b i2c.BusCloser) {
	if err := i2creg.Register(name, nil, -1, func() (i2c.BusCloser, error) { return b, nil }); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := i2creg.Unregister(name); err != nil {
			t.Error(err)
		}
	})
}

func useUART(t *testing.T, ports map[string]*fakePort) {
	old := openUART
	openUART = func(u *config.UART) (uart.PortCloser, error) {
		p := ports[u.ID]
		if p == nil {
			return nil, fmt.Errorf("no port %s", u.ID)
		}
		return p, nil
	}
	t.Cleanup(func() { openUART = old })
}

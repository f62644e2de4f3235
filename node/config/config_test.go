// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const sampleConf = `
node:
  name: greenhouse
  comment: north side

logger:
  level: debug

i2c:
  - id: bus1
    bus: /dev/i2c-1

uart:
  - id: uart0
    port: /dev/ttyAMA0
    read_timeout: 500ms

mqtt:
  broker: mqtt://broker:1883/sensorhub
  discovery: homeassistant
  retain: true

console:
  enabled: true

snapshot:
  path: /var/lib/sensorhub/dashboard.png
  width: 480
  height: 320
  update_interval: 1m

sensor:
  - platform: acd
    variant: acd1100
    i2c_id: bus1
    address: 0x2a
    update_interval: 20s
    auto_calibration: false
    co2:
      name: "CO2"
    temperature:
      name: "CO2 temperature"
    base:
  - platform: max30105
    name: "Dust"
    i2c_id: bus1
    mode: green_red_ir
    sample_rate: 100
    resolution: 18
    led_current:
      red: 31
      ir: 0
    interrupts: [data_ready, temp_ready]
    interrupt_pin: GPIO4
    proximity_threshold: 50
    led1:
      name: "red"
  - platform: bl0910
    uart_id: uart0
    baud: 4800
    voltage:
      name: "Mains"
`

func TestRootLoadYaml(t *testing.T) {
	got := Root{}
	if err := got.LoadYaml([]byte(sampleConf)); err != nil {
		t.Fatal(err)
	}
	no := false
	red := 31
	ir := 0
	prox := 50
	want := Root{
		Node:   Node{Name: "greenhouse", Comment: "north side"},
		Logger: Logger{Level: "debug"},
		I2C:    []I2C{{ID: "bus1", Bus: "/dev/i2c-1"}},
		UART:   []UART{{ID: "uart0", Port: "/dev/ttyAMA0", ReadTimeout: 500 * time.Millisecond}},
		MQTT: MQTT{
			Broker:    "mqtt://broker:1883/sensorhub",
			Discovery: "homeassistant",
			Retain:    true,
		},
		Console: Console{Enabled: true},
		Snapshot: Snapshot{
			Path:           "/var/lib/sensorhub/dashboard.png",
			Width:          480,
			Height:         320,
			UpdateInterval: time.Minute,
		},
		Sensors: []Sensor{
			{
				Platform:        "acd",
				Variant:         "acd1100",
				I2CID:           "bus1",
				Address:         0x2a,
				UpdateInterval:  20 * time.Second,
				AutoCalibration: &no,
				Outputs: map[string]Output{
					"co2":         {Name: "CO2"},
					"temperature": {Name: "CO2 temperature"},
					"base":        {},
				},
			},
			{
				Platform:           "max30105",
				Name:               "Dust",
				I2CID:              "bus1",
				Mode:               "green_red_ir",
				SampleRate:         100,
				Resolution:         18,
				LEDCurrent:         LEDCurrent{Red: &red, IR: &ir},
				Interrupts:         []string{"data_ready", "temp_ready"},
				InterruptPin:       "GPIO4",
				ProximityThreshold: &prox,
				Outputs:            map[string]Output{"led1": {Name: "red"}},
			},
			{
				Platform: "bl0910",
				UARTID:   "uart0",
				Baud:     4800,
				Outputs:  map[string]Output{"voltage": {Name: "Mains"}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Root mismatch (-want +got):\n%s", diff)
	}
}

func TestRootLoadYaml_Err(t *testing.T) {
	got := Root{}
	if err := got.LoadYaml([]byte("unexpected: false")); err == nil {
		t.Fatal("expected error")
	} else if diff := cmp.Diff("yaml: unmarshal errors:\n  line 1: field unexpected not found in type config.Root", err.Error()); diff != "" {
		// Crappy test, comment out if yaml changes its error message.
		t.Fatal(diff)
	}
}

func TestRootLoadYaml_Minimal(t *testing.T) {
	got := Root{}
	if err := got.LoadYaml([]byte("node:\n")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Root{}, got); diff != "" {
		t.Errorf("Root mismatch (-want +got):\n%s", diff)
	}
}

func TestRootLoadYaml_Invalid(t *testing.T) {
	data := []struct {
		name string
		yaml string
		want string
	}{
		{"level", "logger:\n  level: loud\n", "logger: invalid level"},
		{"i2c id", "i2c:\n  - bus: x\n", "i2c: id is required"},
		{"i2c dup", "i2c:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"uart port", "uart:\n  - id: u\n", "port is required"},
		{"discovery", "mqtt:\n  discovery: ha\n", "discovery requires a broker"},
		{"snapshot", "snapshot:\n  path: out.png\n", "must be absolute"},
		{"platform", "sensor:\n  - name: x\n", "platform is required"},
		{"both buses", "i2c:\n  - id: a\nuart:\n  - id: u\n    port: /dev/x\nsensor:\n  - platform: acd\n    i2c_id: a\n    uart_id: u\n", "mutually exclusive"},
		{"unknown bus", "sensor:\n  - platform: acd\n    i2c_id: nope\n", "unknown i2c_id"},
		{"address", "sensor:\n  - platform: acd\n    address: 0x80\n", "invalid address"},
		{"current", "sensor:\n  - platform: max30105\n    led_current:\n      red: 256\n", "led_current: out of range"},
		{"output typo", "sensor:\n  - platform: acd\n    co2:\n      nam: x\n", "field nam not found"},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			r := Root{}
			err := r.LoadYaml([]byte(line.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), line.want) {
				t.Fatalf("%q doesn't contain %q", err, line.want)
			}
		})
	}
}

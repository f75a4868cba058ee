package main

import (
	"testing"

	"curtis-cluster/ecu"
	"curtis-cluster/lighting"
)

func TestNewRedisLights(t *testing.T) {
	tests := []struct {
		state   lighting.State
		blinker string
		hold    string
	}{
		{lighting.State{}, "off", "soft"},
		{lighting.State{LeftActive: true}, "left", "soft"},
		{lighting.State{RightActive: true, HardOverride: true}, "right", "hard"},
		{lighting.State{Warning: true, LeftActive: true, RightActive: true, HardOverride: true}, "both", "hard"},
	}

	for _, tt := range tests {
		fields := NewRedisLights(tt.state).fields()
		if fields["blinker"] != tt.blinker {
			t.Errorf("%+v: expected blinker %q, got %v", tt.state, tt.blinker, fields["blinker"])
		}
		if fields["hold"] != tt.hold {
			t.Errorf("%+v: expected hold %q, got %v", tt.state, tt.hold, fields["hold"])
		}
	}
}

func TestNewRedisTelemetry(t *testing.T) {
	fields := NewRedisTelemetry(ecu.Reading{
		Speed:              42.26,
		StateOfCharge:      0.5,
		Range:              123400,
		AverageConsumption: 540,
		Stale:              true,
	}).fields()

	tests := []struct {
		key  string
		want string
	}{
		{"speed", "42.3"},
		{"soc", "50.0"},
		{"range", "123.4"},
		{"consumption", "150.0"},
		{"data", "stale"},
	}
	for _, tt := range tests {
		if fields[tt.key] != tt.want {
			t.Errorf("%s: expected %q, got %v", tt.key, tt.want, fields[tt.key])
		}
	}
}

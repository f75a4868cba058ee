package main

import (
	"errors"
	"io"
	"log"
	"testing"

	"curtis-cluster/ecu"
	"curtis-cluster/lighting"
)

func newTestLogger() *LeveledLogger {
	return NewLeveledLogger(log.New(io.Discard, "", 0), LogLevelNone)
}

func newTestLights(t *testing.T) *lighting.Controller {
	t.Helper()
	relays, err := lighting.NewRelayDriver(lighting.NewDebugSink(nil), lighting.DefaultPins(), true, nil)
	if err != nil {
		t.Fatalf("NewRelayDriver: %v", err)
	}
	return lighting.NewController(relays, lighting.DefaultConfig(), nil)
}

func TestCommander_Lighting(t *testing.T) {
	lights := newTestLights(t)
	c := NewCommander(newTestLogger(), lights, ecu.NewStore(ecu.DefaultStoreConfig(), nil))

	tests := []struct {
		cmd   string
		check func(lighting.State) bool
	}{
		{CommandToggleLeft, func(s lighting.State) bool { return s.LeftActive && !s.RightActive }},
		{" Toggle-Right ", func(s lighting.State) bool { return s.RightActive && !s.LeftActive }},
		{CommandToggleRight, func(s lighting.State) bool { return !s.RightActive && !s.LeftActive }},
		{CommandToggleWarning, func(s lighting.State) bool { return s.Warning && s.LeftActive && s.RightActive }},
		{CommandToggleWarning, func(s lighting.State) bool { return !s.Warning && !s.LeftActive }},
		{CommandToggleHighbeam, func(s lighting.State) bool { return s.Highbeam }},
	}

	for _, tt := range tests {
		if err := c.Execute(tt.cmd); err != nil {
			t.Fatalf("Execute(%q): %v", tt.cmd, err)
		}
		if st := lights.State(); !tt.check(st) {
			t.Errorf("after %q: unexpected state %+v", tt.cmd, st)
		}
	}
}

func TestCommander_ResetSoC(t *testing.T) {
	cfg := ecu.DefaultStoreConfig()
	store := ecu.NewStore(cfg, nil)
	if err := store.Restore(ecu.Snapshot{
		Version:         ecu.SnapshotVersion,
		EnergyRemaining: cfg.BatteryCapacity / 2,
		Minutes:         make([][2]float64, ecu.MinuteSlots),
	}); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	c := NewCommander(newTestLogger(), nil, store)
	if err := c.Execute(CommandResetSoC); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if soc := store.GetStateOfCharge(); soc != 1 {
		t.Errorf("expected full charge after reset, got %f", soc)
	}
}

func TestCommander_Errors(t *testing.T) {
	store := ecu.NewStore(ecu.DefaultStoreConfig(), nil)

	c := NewCommander(newTestLogger(), newTestLights(t), store)
	if err := c.Execute("launch"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}

	offline := NewCommander(newTestLogger(), nil, store)
	if err := offline.Execute(CommandToggleLeft); !errors.Is(err, ErrLightingOffline) {
		t.Errorf("expected ErrLightingOffline, got %v", err)
	}
	if err := offline.Execute("launch"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand without lighting, got %v", err)
	}
}

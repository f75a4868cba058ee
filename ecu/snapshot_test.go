package ecu

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestSnapshot_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.snapshot")

	s := newTestStore()
	start := time.Unix(1000, 0)
	s.HandleFrame(powerFrame(100), start)
	s.HandleFrame(powerFrame(100), start.Add(10*time.Second))
	s.consumption.appendMinute(Sample{Energy: 1200, Distance: 4})

	if err := s.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restored := newTestStore()
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if got, want := restored.GetEnergyRemaining(), s.GetEnergyRemaining(); got != want {
		t.Errorf("energy: expected %f, got %f", want, got)
	}
	if got, want := restored.GetAverageConsumption(), s.GetAverageConsumption(); !almostEqual(got, want) {
		t.Errorf("average consumption: expected %f, got %f", want, got)
	}
	if got := restored.GetLatestConsumption(); !almostEqual(got, 300) {
		t.Errorf("latest consumption: expected 300, got %f", got)
	}

	// Instantaneous readings are not persisted
	if restored.GetMotorPower() != 0 {
		t.Errorf("motor power should not survive a restart")
	}
}

func TestSnapshot_MissingFile(t *testing.T) {
	s := newTestStore()
	err := s.LoadSnapshot(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if s.GetStateOfCharge() != 1 {
		t.Errorf("cold start should assume full capacity")
	}
}

func TestSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.snapshot")

	snap := newTestStore().Snapshot()
	snap.Version = SnapshotVersion + 1
	snap.EnergyRemaining = 1
	data, err := cbor.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := newTestStore()
	if err := s.LoadSnapshot(path); !errors.Is(err, ErrUnsupportedSnapshot) {
		t.Fatalf("expected ErrUnsupportedSnapshot, got %v", err)
	}
	if s.GetEnergyRemaining() != DefaultBatteryCapacity {
		t.Errorf("rejected snapshot must not change state")
	}
}

func TestSnapshot_RejectsWrongSlotCount(t *testing.T) {
	snap := newTestStore().Snapshot()
	snap.Minutes = snap.Minutes[:3]

	if err := newTestStore().Restore(snap); err == nil {
		t.Error("expected error for short minute ring")
	}
}

func TestSnapshot_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"nan energy", func(s *Snapshot) { s.EnergyRemaining = math.NaN() }},
		{"inf energy", func(s *Snapshot) { s.EnergyRemaining = math.Inf(1) }},
		{"nan slot energy", func(s *Snapshot) { s.Minutes[3][0] = math.NaN() }},
		{"inf slot distance", func(s *Snapshot) { s.Minutes[7][1] = math.Inf(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := newTestStore().Snapshot()
			tt.mutate(&snap)

			s := newTestStore()
			if err := s.Restore(snap); err == nil {
				t.Fatal("expected error")
			}
			if s.GetEnergyRemaining() != DefaultBatteryCapacity {
				t.Errorf("rejected snapshot must not change state")
			}
			if soc := s.GetStateOfCharge(); math.IsNaN(soc) {
				t.Errorf("state of charge is NaN")
			}
		})
	}
}

func TestSnapshot_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.snapshot")
	if err := os.WriteFile(path, []byte("not cbor"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := newTestStore().LoadSnapshot(path); err == nil {
		t.Error("expected decode error")
	}
}

package ecu

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// SnapshotVersion is bumped whenever the persisted layout changes.
const SnapshotVersion = 1

// ErrUnsupportedSnapshot is returned for records written by a different layout.
var ErrUnsupportedSnapshot = errors.New("unsupported snapshot version")

// Snapshot is the state that survives a restart: the battery estimate and
// the per-minute consumption history.
type Snapshot struct {
	Version         int          `cbor:"1,keyasint"`
	EnergyRemaining float64      `cbor:"2,keyasint"`
	Minutes         [][2]float64 `cbor:"3,keyasint"` // energy J, distance m
	Head            int          `cbor:"4,keyasint"`
	SavedAt         int64        `cbor:"5,keyasint"` // unix seconds
}

// Snapshot captures the persisted part of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minutes, head := s.consumption.Minutes()
	snap := Snapshot{
		Version:         SnapshotVersion,
		EnergyRemaining: s.energyRemaining,
		Minutes:         make([][2]float64, len(minutes)),
		Head:            head,
		SavedAt:         time.Now().Unix(),
	}
	for i, m := range minutes {
		snap.Minutes[i] = [2]float64{m.Energy, m.Distance}
	}
	return snap
}

// Restore loads a snapshot into the store. Live integration state (speed,
// timestamps, partial samples) starts fresh.
func (s *Store) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, snap.Version)
	}
	if len(snap.Minutes) != MinuteSlots {
		return fmt.Errorf("snapshot has %d minute slots, want %d", len(snap.Minutes), MinuteSlots)
	}

	if !finite(snap.EnergyRemaining) {
		return fmt.Errorf("snapshot energy is not finite: %v", snap.EnergyRemaining)
	}

	var minutes [MinuteSlots]Sample
	for i, m := range snap.Minutes {
		if !finite(m[0]) || !finite(m[1]) {
			return fmt.Errorf("snapshot minute slot %d is not finite: %v", i, m)
		}
		minutes[i] = Sample{Energy: m[0], Distance: m[1]}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.energyRemaining = snap.EnergyRemaining
	s.consumption.Restore(minutes, snap.Head)
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SaveSnapshot writes the snapshot atomically via a temporary file.
func (s *Store) SaveSnapshot(path string) error {
	data, err := cbor.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores from path. A missing file returns an error that
// satisfies errors.Is(err, fs.ErrNotExist).
func (s *Store) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s.Restore(snap)
}

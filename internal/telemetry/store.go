// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry holds the latest snapshot of every configured inverter.
package telemetry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrUnknownDevice is returned when writing a device id that was not
// configured at startup.
var ErrUnknownDevice = errors.New("unknown device")

// Snapshot is the latest successful reading of one device. It is replaced
// as a whole, never modified in place.
type Snapshot struct {
	Label      string    `json:"label"`
	Fields     []string  `json:"raw_data"`
	Energy     string    `json:"qed"` // daily energy total in kWh, two fraction digits
	LastUpdate time.Time `json:"last_update"`
}

// Clone returns a deep copy of the snapshot
func (s Snapshot) Clone() Snapshot {
	s.Fields = slices.Clone(s.Fields)
	return s
}

// Age returns how long ago the snapshot was taken
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.LastUpdate)
}

// Store maps device ids to their latest snapshot. The set of ids is fixed
// when the store is created; each id is written by exactly one poll loop.
type Store struct {
	mu        sync.RWMutex
	snapshots map[uint8]Snapshot
	ids       []uint8
}

// NewStore creates a store accepting the given device ids
func NewStore(ids ...uint8) *Store {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return &Store{
		snapshots: make(map[uint8]Snapshot, len(ids)),
		ids:       slices.Compact(sorted),
	}
}

// IDs returns the configured device ids in ascending order
func (s *Store) IDs() []uint8 {
	return slices.Clone(s.ids)
}

// Put replaces the snapshot of device id
func (s *Store) Put(id uint8, snap Snapshot) error {
	if _, ok := slices.BinarySearch(s.ids, id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	snap = snap.Clone()

	s.mu.Lock()
	s.snapshots[id] = snap
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the snapshot of device id
func (s *Store) Get(id uint8) (Snapshot, bool) {
	s.mu.RLock()
	snap, ok := s.snapshots[id]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return snap.Clone(), true
}

// Snapshot returns a copy of every device snapshot taken so far.
// Devices that never answered are absent.
func (s *Store) Snapshot() map[uint8]Snapshot {
	s.mu.RLock()
	out := make(map[uint8]Snapshot, len(s.snapshots))
	for id, snap := range s.snapshots {
		out[id] = snap
	}
	s.mu.RUnlock()

	// Stored snapshots are never mutated, so cloning can happen unlocked.
	for id, snap := range out {
		out[id] = snap.Clone()
	}
	return out
}

// Stale returns the configured ids whose snapshot is missing or older than maxAge
func (s *Store) Stale(now time.Time, maxAge time.Duration) []uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []uint8
	for _, id := range s.ids {
		snap, ok := s.snapshots[id]
		if !ok || snap.Age(now) > maxAge {
			stale = append(stale, id)
		}
	}
	return stale
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"maps"
	"slices"

	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
)

// Totals is the aggregate power across devices at one instant
type Totals struct {
	PVPower   float64
	LoadPower float64
	Included  []uint8 // devices that contributed
	Skipped   []uint8 // devices whose field sequence was too short
}

// ComputeTotals sums PV and load power over every snapshot the layout
// applies to. Short field sequences contribute nothing.
func ComputeTotals(snapshots map[uint8]telemetry.Snapshot, layout pi30.FieldLayout) Totals {
	var t Totals
	for _, id := range slices.Sorted(maps.Keys(snapshots)) {
		fields := snapshots[id].Fields
		if !layout.Applies(fields) {
			t.Skipped = append(t.Skipped, id)
			continue
		}
		t.PVPower += layout.PVPower(fields)
		t.LoadPower += layout.LoadPowerW(fields)
		t.Included = append(t.Included, id)
	}
	return t
}

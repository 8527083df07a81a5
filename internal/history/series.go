// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package history builds today's time-bucketed power series from the
// telemetry store.
package history

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrOutOfOrder is returned when a point does not advance the bucket index.
var ErrOutOfOrder = errors.New("bucket index does not advance")

// Point is the aggregate power of all devices in one time bucket
type Point struct {
	BucketIndex int     `json:"bucket_index"`
	PVPower     float64 `json:"pv_power"`
	LoadPower   float64 `json:"load_power"`
}

// Series is today's ordered list of points. At most one point exists per
// bucket and bucket indices strictly increase.
type Series struct {
	mu     sync.RWMutex
	points []Point
}

// NewSeries creates an empty series with room for capacity points,
// normally BucketsPerDay of the configured bucket width.
func NewSeries(capacity int) *Series {
	return &Series{points: make([]Point, 0, max(capacity, 0))}
}

// Append adds p to the series. With newDay set the series is cleared
// first, in the same critical section, so readers never observe the
// empty intermediate state. Returns the new length.
func (s *Series) Append(p Point, newDay bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newDay {
		s.points = s.points[:0]
	}
	if n := len(s.points); n > 0 && p.BucketIndex <= s.points[n-1].BucketIndex {
		return n, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, p.BucketIndex, s.points[n-1].BucketIndex)
	}
	s.points = append(s.points, p)
	return len(s.points), nil
}

// Points returns a copy of the series
func (s *Series) Points() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.points)
}

// Latest returns the most recent point
func (s *Series) Latest() (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Len returns the number of points
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/pi30gate/internal/metrics"
	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// legacyFields builds a 16 field response with the given legacy layout values
func legacyFields(load, v1, a1, v2, a2 string) []string {
	f := strings.Fields("0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0")
	f[9], f[11], f[12], f[14], f[15] = load, v1, a1, v2, a2
	return f
}

func at(day, hour, minute, second int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, second, 0, time.Local)
}

func newTestAggregator(t *testing.T, store *telemetry.Store) (*Aggregator, *Series) {
	t.Helper()
	series := NewSeries(BucketsPerDay(time.Minute))
	agg := NewAggregator(store, series, pi30.LegacyLayout(),
		Options{Tick: 10 * time.Second, BucketWidth: time.Minute},
		zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	return agg, series
}

// ============================================================
// Buckets
// ============================================================

func TestBucketIndex(t *testing.T) {
	assert.Equal(t, 0, BucketIndex(at(1, 0, 0, 0), time.Minute))
	assert.Equal(t, 0, BucketIndex(at(1, 0, 0, 59), time.Minute))
	assert.Equal(t, 1, BucketIndex(at(1, 0, 1, 0), time.Minute))
	assert.Equal(t, 1439, BucketIndex(at(1, 23, 59, 59), time.Minute))
	assert.Equal(t, 2879, BucketIndex(at(1, 23, 59, 59), 30*time.Second))
	assert.Equal(t, 1440, BucketsPerDay(time.Minute))
	assert.Equal(t, 2880, BucketsPerDay(30*time.Second))
}

// ============================================================
// Series
// ============================================================

func TestSeries_StrictOrder(t *testing.T) {
	s := NewSeries(BucketsPerDay(time.Minute))
	n, err := s.Append(Point{BucketIndex: 5}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Append(Point{BucketIndex: 5}, false)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = s.Append(Point{BucketIndex: 4}, false)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	n, err = s.Append(Point{BucketIndex: 0}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []Point{{BucketIndex: 0}}, s.Points())
}

func TestSeries_PointsIsCopy(t *testing.T) {
	s := NewSeries(BucketsPerDay(time.Minute))
	_, _ = s.Append(Point{BucketIndex: 1, PVPower: 10}, false)

	points := s.Points()
	points[0].PVPower = 99

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 10.0, latest.PVPower)
}

func TestSeries_EmptyAndCapacity(t *testing.T) {
	s := NewSeries(BucketsPerDay(30 * time.Second))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 2880, cap(s.points))
	_, ok := s.Latest()
	assert.False(t, ok)

	assert.Equal(t, 0, cap(NewSeries(-1).points))
}

func TestPoint_JSON(t *testing.T) {
	data, err := json.Marshal([]Point{{BucketIndex: 720, PVPower: 1532.5, LoadPower: 412}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"bucket_index":720,"pv_power":1532.5,"load_power":412}]`, string(data))
}

// ============================================================
// Aggregation
// ============================================================

func TestComputeTotals_ShortFieldsExcluded(t *testing.T) {
	snapshots := map[uint8]telemetry.Snapshot{
		1: {Label: "Master", Fields: legacyFields("400", "50", "10", "100", "2")},
		2: {Label: "Slave", Fields: []string{"1", "2", "3"}},
		3: {Label: "Garbled", Fields: legacyFields("x", "y", "10", "100", "1")},
	}

	totals := ComputeTotals(snapshots, pi30.LegacyLayout())
	assert.Equal(t, 50.0*10+100*2+100*1, totals.PVPower)
	assert.Equal(t, 400.0, totals.LoadPower)
	assert.Equal(t, []uint8{1, 3}, totals.Included)
	assert.Equal(t, []uint8{2}, totals.Skipped)
}

func TestComputeTotals_Empty(t *testing.T) {
	totals := ComputeTotals(nil, pi30.QPGSLayout())
	assert.Zero(t, totals.PVPower)
	assert.Zero(t, totals.LoadPower)
}

func TestAggregator_IdempotentWithinBucket(t *testing.T) {
	store := telemetry.NewStore(1)
	require.NoError(t, store.Put(1, telemetry.Snapshot{Label: "Master", Fields: legacyFields("300", "50", "2", "0", "0")}))
	agg, series := newTestAggregator(t, store)

	_, ok := agg.Tick(at(1, 12, 0, 5))
	assert.True(t, ok)
	_, ok = agg.Tick(at(1, 12, 0, 15))
	assert.False(t, ok)
	_, ok = agg.Tick(at(1, 12, 0, 55))
	assert.False(t, ok)

	p, ok := agg.Tick(at(1, 12, 1, 5))
	assert.True(t, ok)
	assert.Equal(t, Point{BucketIndex: 721, PVPower: 100, LoadPower: 300}, p)
	assert.Equal(t, 2, series.Len())
}

func TestAggregator_DailyRollover(t *testing.T) {
	store := telemetry.NewStore(1)
	agg, series := newTestAggregator(t, store)

	agg.Tick(at(1, 23, 58, 0))
	agg.Tick(at(1, 23, 59, 0))
	require.Equal(t, 2, series.Len())

	p, ok := agg.Tick(at(2, 0, 0, 3))
	require.True(t, ok)
	assert.Equal(t, 0, p.BucketIndex)
	assert.Equal(t, []Point{{BucketIndex: 0}}, series.Points())
}

func TestAggregator_RolloverWithoutFirstBucket(t *testing.T) {
	// A tick that misses 00:00 still starts a fresh series on a new date.
	store := telemetry.NewStore(1)
	agg, series := newTestAggregator(t, store)

	agg.Tick(at(1, 23, 59, 0))
	p, ok := agg.Tick(at(2, 0, 1, 30))
	require.True(t, ok)
	assert.Equal(t, 1, p.BucketIndex)
	assert.Equal(t, 1, series.Len())
}

func TestAggregator_ClockBackwards(t *testing.T) {
	store := telemetry.NewStore(1)
	agg, series := newTestAggregator(t, store)

	agg.Tick(at(1, 2, 30, 0))
	_, ok := agg.Tick(at(1, 2, 10, 0))
	assert.False(t, ok)
	_, ok = agg.Tick(at(1, 2, 31, 0))
	assert.True(t, ok)
	assert.Equal(t, 2, series.Len())
}

func TestAggregator_ShortDeviceStillSumsOthers(t *testing.T) {
	store := telemetry.NewStore(1, 2)
	require.NoError(t, store.Put(1, telemetry.Snapshot{Label: "Master", Fields: legacyFields("250", "40", "5", "0", "0")}))
	require.NoError(t, store.Put(2, telemetry.Snapshot{Label: "Slave", Fields: []string{"NAK"}}))
	agg, _ := newTestAggregator(t, store)

	p, ok := agg.Tick(at(1, 8, 0, 0))
	require.True(t, ok)
	assert.Equal(t, 200.0, p.PVPower)
	assert.Equal(t, 250.0, p.LoadPower)
}

func TestAggregator_RunStopsOnCancel(t *testing.T) {
	store := telemetry.NewStore(1)
	series := NewSeries(BucketsPerDay(time.Minute))
	agg := NewAggregator(store, series, pi30.LegacyLayout(),
		Options{Tick: 5 * time.Millisecond, BucketWidth: time.Minute}, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agg.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("aggregator did not stop")
	}
	assert.GreaterOrEqual(t, series.Len(), 1)
}

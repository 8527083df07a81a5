// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/pi30gate/internal/metrics"
	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"go.uber.org/zap"
)

// BucketIndex returns the index of the bucket containing t's local wall
// clock time of day.
func BucketIndex(t time.Time, width time.Duration) int {
	seconds := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return seconds / int(width/time.Second)
}

// BucketsPerDay returns how many buckets of width fit in a day
func BucketsPerDay(width time.Duration) int {
	return int(24 * time.Hour / width)
}

// Options sets how often the store is sampled and how wide each bucket is.
type Options struct {
	Tick        time.Duration
	BucketWidth time.Duration
}

// Aggregator samples the telemetry store and appends one point per bucket.
type Aggregator struct {
	store   *telemetry.Store
	series  *Series
	layout  pi30.FieldLayout
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	lastBucket int
	lastDay    string
}

// NewAggregator creates an aggregator writing into series
func NewAggregator(store *telemetry.Store, series *Series, layout pi30.FieldLayout, opts Options, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	if opts.BucketWidth < time.Second {
		opts.BucketWidth = time.Minute
	}
	if opts.Tick <= 0 {
		opts.Tick = 10 * time.Second
	}
	return &Aggregator{
		store:      store,
		series:     series,
		layout:     layout,
		opts:       opts,
		logger:     logger.With(zap.String("component", "history")),
		metrics:    m,
		lastBucket: -1,
	}
}

// Tick samples the store if now falls in a new bucket. It returns the
// appended point, or false when nothing was appended.
func (a *Aggregator) Tick(now time.Time) (Point, bool) {
	bucket := BucketIndex(now, a.opts.BucketWidth)
	day := now.Format(pi30.DateLayout)

	if bucket == a.lastBucket && day == a.lastDay {
		return Point{}, false
	}

	newDay := bucket == 0 || (a.lastDay != "" && day != a.lastDay)
	if !newDay && day == a.lastDay && bucket < a.lastBucket {
		// Wall clock moved backwards (DST or clock correction); wait
		// until it passes the last recorded bucket again.
		a.logger.Debug("clock moved backwards, skipping bucket",
			zap.Int("bucket", bucket), zap.Int("last_bucket", a.lastBucket))
		return Point{}, false
	}

	totals := ComputeTotals(a.store.Snapshot(), a.layout)
	point := Point{
		BucketIndex: bucket,
		PVPower:     totals.PVPower,
		LoadPower:   totals.LoadPower,
	}

	n, err := a.series.Append(point, newDay)
	if err != nil {
		a.logger.Warn("history append rejected", zap.Error(err))
		return Point{}, false
	}

	if newDay && a.lastDay != "" {
		a.logger.Info("history reset for new day", zap.String("day", day))
		a.metrics.HistoryReset()
	}
	if len(totals.Skipped) > 0 {
		a.logger.Debug("devices excluded from aggregation",
			zap.Uint8s("devices", totals.Skipped), zap.Int("min_fields", a.layout.MinFields))
	}
	a.logger.Debug("history point",
		zap.Int("bucket", bucket),
		zap.Float64("pv_power", point.PVPower),
		zap.Float64("load_power", point.LoadPower),
		zap.Int("points", n))
	a.metrics.ObserveHistoryPoint(n, point.PVPower, point.LoadPower)

	a.lastBucket = bucket
	a.lastDay = day
	return point, true
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("history aggregator started",
		zap.Duration("tick", a.opts.Tick),
		zap.Duration("bucket_width", a.opts.BucketWidth),
		zap.Stringer("layout", a.layout))

	ticker := time.NewTicker(a.opts.Tick)
	defer ticker.Stop()

	a.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("history aggregator stopped", zap.Int("points", a.series.Len()))
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			a.Tick(now)
		}
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poller runs the query loop of one inverter and commits its
// readings to the telemetry store.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/pi30gate/internal/metrics"
	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/Thermoquad/pi30gate/internal/transport"
	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// InitialEnergy is reported until the first energy query succeeds.
const InitialEnergy = "0.00"

type linkState int

const (
	linkUnknown linkState = iota
	linkOnline
	linkOffline
)

// Options controls the poll cadence and the framing of each exchange.
type Options struct {
	Interval       time.Duration // idle wait between cycles
	RetryInterval  time.Duration // wait between open attempts
	EnergyInterval time.Duration // minimum age of the energy total before it is queried again
	Exchange       pi30.Options
}

// Poller owns one device handle. It is not safe for concurrent use; run
// one Poller per device.
type Poller struct {
	id      uint8
	label   string
	open    transport.Opener
	store   *telemetry.Store
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	dev        transport.Device
	state      linkState
	energy     string
	energyAt   time.Time
	energyDay  string
	statusCmd  string
	lastFields []string
}

// New creates a poller for device id
func New(id uint8, label string, open transport.Opener, store *telemetry.Store, opts Options, logger *zap.Logger, m *metrics.Metrics) *Poller {
	return &Poller{
		id:        id,
		label:     label,
		open:      open,
		store:     store,
		opts:      opts,
		logger:    logger.With(zap.String("component", "poller"), zap.Uint8("device", id), zap.String("label", label)),
		metrics:   m,
		energy:    InitialEnergy,
		statusCmd: pi30.ParallelStatusCommand(id),
	}
}

// Run polls until ctx is cancelled. Failures never end the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poll loop started", zap.String("command", p.statusCmd))
	defer p.disconnect()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if p.dev == nil {
			if err := p.connect(ctx); err != nil {
				return nil
			}
		}

		p.Cycle(time.Now())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.opts.Interval):
		}
	}
}

// connect opens the device, retrying at a constant cadence until it
// succeeds or ctx is cancelled.
func (p *Poller) connect(ctx context.Context) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(p.opts.RetryInterval), ctx)

	dev, err := backoff.RetryNotifyWithData(p.TryOpen, b, func(err error, next time.Duration) {
		p.logger.Debug("open failed, retrying", zap.Error(err), zap.Duration("retry_in", next))
	})
	if err != nil {
		return err
	}
	p.dev = dev
	return nil
}

// TryOpen makes one attempt to open the device.
func (p *Poller) TryOpen() (transport.Device, error) {
	dev, err := p.open()
	if err != nil {
		p.metrics.ObserveExchange(p.id, metrics.QueryStatus, metrics.ResultOpenError, 0)
		p.setOnline(false, err)
		return nil, err
	}
	p.logger.Debug("device opened")
	return dev, nil
}

// Cycle runs one status query, the energy query when it is due, and
// commits the result. It returns true when a snapshot was committed.
// Cycle opens the device once if it is not open yet.
func (p *Poller) Cycle(now time.Time) bool {
	if p.dev == nil {
		dev, err := p.TryOpen()
		if err != nil {
			return false
		}
		p.dev = dev
	}

	fields, err := p.queryStatus()
	if err != nil {
		p.logger.Debug("status query failed", zap.Error(err))
		// A silent or failing port is reopened; a garbled answer is not.
		if errors.Is(err, pi30.ErrNoResponse) || errors.Is(err, errRead) {
			p.disconnect()
		}
		p.setOnline(false, err)
		return false
	}

	if p.energyDue(now) {
		p.queryEnergy(now)
	}

	snap := telemetry.Snapshot{
		Label:      p.label,
		Fields:     fields,
		Energy:     p.energy,
		LastUpdate: now,
	}
	if err := p.store.Put(p.id, snap); err != nil {
		p.logger.Error("commit rejected", zap.Error(err))
		return false
	}
	p.metrics.SetLastUpdate(p.id, now)
	p.lastFields = fields
	p.setOnline(true, nil)
	return true
}

var errRead = errors.New("read failed")

func (p *Poller) queryStatus() ([]string, error) {
	start := time.Now()
	raw, err := pi30.Exchange(p.dev, p.statusCmd, p.opts.Exchange)
	if err != nil {
		result := metrics.ResultReadError
		if errors.Is(err, pi30.ErrNoResponse) {
			result = metrics.ResultNoResponse
		} else {
			err = errors.Join(errRead, err)
		}
		p.metrics.ObserveExchange(p.id, metrics.QueryStatus, result, 0)
		return nil, err
	}

	fields, err := pi30.DecodeTelemetry(raw)
	if err != nil {
		p.metrics.ObserveExchange(p.id, metrics.QueryStatus, metrics.ResultDecodeError, 0)
		p.logger.Debug("undecodable status response", zap.String("raw", pi30.FormatPrintable(raw)))
		return nil, err
	}
	p.metrics.ObserveExchange(p.id, metrics.QueryStatus, metrics.ResultOK, time.Since(start))
	return fields, nil
}

func (p *Poller) energyDue(now time.Time) bool {
	if p.energyAt.IsZero() || pi30.DateStamp(now) != p.energyDay {
		return true
	}
	return now.Sub(p.energyAt) > p.opts.EnergyInterval
}

// queryEnergy refreshes the cached energy total. On failure the cached
// value is kept and the query is retried next cycle.
func (p *Poller) queryEnergy(now time.Time) {
	date := pi30.DateStamp(now)
	start := time.Now()

	raw, err := pi30.Exchange(p.dev, pi30.EnergyDayCommand(now), p.opts.Exchange)
	if err != nil {
		result := metrics.ResultReadError
		if errors.Is(err, pi30.ErrNoResponse) {
			result = metrics.ResultNoResponse
		}
		p.metrics.ObserveExchange(p.id, metrics.QueryEnergy, result, 0)
		p.logger.Debug("energy query failed", zap.Error(err))
		return
	}

	total, err := pi30.DecodeEnergy(raw, date)
	if err != nil {
		p.metrics.ObserveExchange(p.id, metrics.QueryEnergy, metrics.ResultDecodeError, 0)
		p.logger.Debug("undecodable energy response", zap.Error(err), zap.String("raw", pi30.FormatPrintable(raw)))
		return
	}

	p.metrics.ObserveExchange(p.id, metrics.QueryEnergy, metrics.ResultOK, time.Since(start))
	p.energy = total
	p.energyAt = now
	p.energyDay = date
}

func (p *Poller) disconnect() {
	if p.dev == nil {
		return
	}
	if err := p.dev.Close(); err != nil {
		p.logger.Debug("close failed", zap.Error(err))
	}
	p.dev = nil
}

// setOnline logs reachability transitions once rather than every cycle.
func (p *Poller) setOnline(online bool, cause error) {
	next := linkOffline
	if online {
		next = linkOnline
	}
	if next == p.state {
		return
	}
	p.state = next
	if online {
		p.logger.Info("device online", zap.Int("fields", len(p.lastFields)), zap.String("energy", p.energy))
	} else {
		p.logger.Warn("device offline", zap.Error(cause))
	}
}

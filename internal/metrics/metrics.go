// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics defines the prometheus collectors exported by the gateway.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "pi30gate_"

// Exchange results
const (
	ResultOK          = "ok"
	ResultOpenError   = "open_error"
	ResultNoResponse  = "no_response"
	ResultReadError   = "read_error"
	ResultDecodeError = "decode_error"
)

// Query labels
const (
	QueryStatus = "status"
	QueryEnergy = "energy"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	lastUpdate       *prometheus.GaugeVec
	historyPoints    prometheus.Gauge
	historyResets    prometheus.Counter
	pvPower          prometheus.Gauge
	loadPower        prometheus.Gauge
	wsSubscribers    prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exchanges_total",
				Help: "Total protocol exchanges by device, query and result",
			},
			[]string{"device", "query", "result"},
		),
		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "exchange_duration_seconds",
				Help:    "Duration of successful protocol exchanges in seconds",
				Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2},
			},
			[]string{"device", "query"},
		),
		lastUpdate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "device_last_update_timestamp_seconds",
				Help: "Unix time of the last committed snapshot per device",
			},
			[]string{"device"},
		),
		historyPoints: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "history_points",
				Help: "Number of points in today's history series",
			},
		),
		historyResets: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_resets_total",
				Help: "Total daily history resets",
			},
		),
		pvPower: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "pv_power_watts",
				Help: "Aggregate PV power of the last history point",
			},
		),
		loadPower: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "load_power_watts",
				Help: "Aggregate load power of the last history point",
			},
		),
		wsSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "ws_subscribers",
				Help: "Connected WebSocket subscribers",
			},
		),
	}

	reg.MustRegister(
		m.exchanges,
		m.exchangeDuration,
		m.lastUpdate,
		m.historyPoints,
		m.historyResets,
		m.pvPower,
		m.loadPower,
		m.wsSubscribers,
	)
	return m
}

func deviceLabel(id uint8) string {
	return strconv.Itoa(int(id))
}

// ObserveExchange records one exchange outcome
func (m *Metrics) ObserveExchange(device uint8, query, result string, duration time.Duration) {
	if m == nil {
		return
	}
	dev := deviceLabel(device)
	m.exchanges.WithLabelValues(dev, query, result).Inc()
	if result == ResultOK {
		m.exchangeDuration.WithLabelValues(dev, query).Observe(duration.Seconds())
	}
}

// SetLastUpdate records a committed snapshot
func (m *Metrics) SetLastUpdate(device uint8, at time.Time) {
	if m == nil {
		return
	}
	m.lastUpdate.WithLabelValues(deviceLabel(device)).Set(float64(at.Unix()))
}

// ObserveHistoryPoint records an appended history point
func (m *Metrics) ObserveHistoryPoint(points int, pv, load float64) {
	if m == nil {
		return
	}
	m.historyPoints.Set(float64(points))
	m.pvPower.Set(pv)
	m.loadPower.Set(load)
}

// HistoryReset records a daily reset
func (m *Metrics) HistoryReset() {
	if m == nil {
		return
	}
	m.historyResets.Inc()
}

// SubscriberConnected tracks WebSocket subscribers
func (m *Metrics) SubscriberConnected() {
	if m == nil {
		return
	}
	m.wsSubscribers.Inc()
}

// SubscriberDisconnected tracks WebSocket subscribers
func (m *Metrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.wsSubscribers.Dec()
}

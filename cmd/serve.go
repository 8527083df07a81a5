// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/pi30gate/internal/config"
	"github.com/Thermoquad/pi30gate/internal/history"
	"github.com/Thermoquad/pi30gate/internal/metrics"
	"github.com/Thermoquad/pi30gate/internal/mqtt"
	"github.com/Thermoquad/pi30gate/internal/poller"
	"github.com/Thermoquad/pi30gate/internal/server"
	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/Thermoquad/pi30gate/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Poll every configured inverter and publish the results.

Each device gets its own poll loop that reopens the device after transport
failures. A history aggregator samples the combined PV and load power once
per bucket and starts a new series every day. The HTTP server exposes the
latest snapshots, the history and a WebSocket push feed; MQTT publishing is
optional.

Runs until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevelName = logLevel
		cfg.LogLevel = config.ParseLogLevel(logLevel)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zapCfg.Build()
}

// needsHID reports whether any device is opened through hidapi. An empty
// transport opens as HID.
func needsHID(devices []config.DeviceConfig) bool {
	for _, d := range devices {
		if d.Transport == config.TransportHID || d.Transport == "" {
			return true
		}
	}
	return false
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	layout, err := cfg.History.FieldLayout()
	if err != nil {
		return err
	}
	logger.Info("starting gateway",
		zap.String("version", rootCmd.Version),
		zap.Int("devices", len(cfg.Devices)),
		zap.Stringer("layout", layout))

	if needsHID(cfg.Devices) {
		if err := transport.InitHID(); err != nil {
			return fmt.Errorf("failed to initialize HID: %v", err)
		}
		defer transport.ExitHID()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ids := make([]uint8, len(cfg.Devices))
	for i, d := range cfg.Devices {
		ids[i] = d.ID
	}
	store := telemetry.NewStore(ids...)
	series := history.NewSeries(history.BucketsPerDay(cfg.History.BucketWidth()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	for _, d := range cfg.Devices {
		target := transport.Target{Kind: d.Transport, Path: d.Path, BaudRate: d.BaudRate}
		p := poller.New(d.ID, d.Label, transport.OpenerFor(target), store, poller.Options{
			Interval:       cfg.Poll.Interval(),
			RetryInterval:  cfg.Poll.RetryInterval(),
			EnergyInterval: cfg.Poll.EnergyInterval(),
			Exchange:       cfg.Poll.ExchangeOptions(d.ReportID()),
		}, logger, m)
		logger.Info("device configured",
			zap.Uint8("device", d.ID),
			zap.String("label", d.Label),
			zap.String("path", d.Path),
			zap.String("transport", d.Transport))
		g.Go(func() error { return p.Run(ctx) })
	}

	agg := history.NewAggregator(store, series, layout, history.Options{
		Tick:        cfg.History.Tick(),
		BucketWidth: cfg.History.BucketWidth(),
	}, logger, m)
	g.Go(func() error { return agg.Run(ctx) })

	srv := server.New(server.Options{
		Config:      cfg.Server,
		BucketWidth: cfg.History.BucketWidth(),
		StaleAfter:  staleAfter(cfg.Poll),
		Gatherer:    reg,
	}, store, series, m, logger)
	g.Go(func() error { return srv.Run(ctx) })

	if cfg.MQTT.Enable {
		pub := mqtt.NewPublisher(cfg.MQTT, store, series, logger)
		g.Go(func() error { return pub.Run(ctx) })
	}

	err = g.Wait()
	logger.Info("gateway stopped")
	return err
}

// staleAfter is the snapshot age beyond which the health check treats a
// device as offline: three full reconnect-and-exchange cycles.
func staleAfter(p config.PollConfig) time.Duration {
	responseTimeout := time.Duration(p.ResponseTimeoutMillis) * time.Millisecond
	return 3 * (p.RetryInterval() + responseTimeout + p.Interval())
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package server exposes the telemetry store and history series over
// HTTP and WebSocket. Data only flows outwards; no endpoint reaches the
// inverters.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Thermoquad/pi30gate/internal/config"
	"github.com/Thermoquad/pi30gate/internal/history"
	"github.com/Thermoquad/pi30gate/internal/metrics"
	"github.com/Thermoquad/pi30gate/internal/telemetry"
	_ "github.com/joho/godotenv/autoload"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options configures a Server.
type Options struct {
	Config      config.ServerConfig
	BucketWidth time.Duration // width of history buckets, for the spreadsheet export
	StaleAfter  time.Duration // snapshot age after which a device counts as offline
	Gatherer    prometheus.Gatherer
}

// Server serves the store and series. A Server is built once per process
// and stops pushing to WebSocket subscribers when Run returns.
type Server struct {
	opts    Options
	store   *telemetry.Store
	series  *history.Series
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	upgrader websocket.Upgrader

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a server reading from store and series. A nil Gatherer
// falls back to the default prometheus registry.
func New(opts Options, store *telemetry.Store, series *history.Series, m *metrics.Metrics, logger *zap.Logger) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.BucketWidth <= 0 {
		opts.BucketWidth = time.Minute
	}
	s := &Server{
		opts:    opts,
		store:   store,
		series:  series,
		metrics: m,
		logger:  logger.With(zap.String("component", "server")),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// HTTPServer builds the http.Server for the configured port
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        fmt.Sprintf(":%d", s.opts.Config.Port),
		Handler:     s.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// WebSocket connections are long lived, so no WriteTimeout.
	}
}

// Run serves until ctx is cancelled, then shuts down with a 5 second grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.stopPush()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	s.stopPush()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// stopPush ends every WebSocket push loop
func (s *Server) stopPush() {
	s.doneOnce.Do(func() { close(s.done) })
}

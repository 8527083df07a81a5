// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Thermoquad/pi30gate/internal/history"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes builds the echo router. Every route except /healthcheck
// requires basic auth when a username is configured.
func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if s.opts.Config.HttpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	// healthcheck stays open for container probes
	e.GET("/healthcheck", s.HealthCheckHandler)

	var auth []echo.MiddlewareFunc
	if s.opts.Config.Username != "" {
		auth = append(auth, middleware.BasicAuth(s.checkCredentials))
	}
	e.GET("/state", s.StateHandler, auth...)
	e.GET("/state/:id", s.DeviceStateHandler, auth...)
	e.GET("/history", s.HistoryHandler, auth...)
	e.GET("/history.xlsx", s.HistoryExportHandler, auth...)
	e.GET("/ws", s.WebSocketHandler, auth...)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})), auth...)

	return e
}

func (s *Server) checkCredentials(username, password string, _ echo.Context) (bool, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.opts.Config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.Config.Password)) == 1
	return userOK && passOK, nil
}

// HealthCheckHandler reports OK while at least one device has a fresh
// snapshot, and 503 with the stale ids otherwise.
func (s *Server) HealthCheckHandler(c echo.Context) error {
	stale := s.store.Stale(s.now(), s.opts.StaleAfter)
	if len(stale) < len(s.store.IDs()) {
		return c.String(http.StatusOK, "health_check: OK")
	}
	ids := make([]string, len(stale))
	for i, id := range stale {
		ids[i] = strconv.Itoa(int(id))
	}
	return c.String(http.StatusServiceUnavailable, fmt.Sprintf("health_check: FAIL (stale: %s)", strings.Join(ids, ",")))
}

// StateHandler returns every device snapshot keyed by id.
func (s *Server) StateHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Snapshot())
}

// DeviceStateHandler returns the snapshot of one device.
func (s *Server) DeviceStateHandler(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid device id")
	}
	snap, ok := s.store.Get(uint8(id))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no snapshot for device")
	}
	return c.JSON(http.StatusOK, snap)
}

// HistoryHandler returns today's series, or an empty array before the
// first point.
func (s *Server) HistoryHandler(c echo.Context) error {
	points := s.series.Points()
	if points == nil {
		points = []history.Point{}
	}
	return c.JSON(http.StatusOK, points)
}

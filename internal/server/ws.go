// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	FormatJSON = "json"
	FormatCBOR = "cbor"

	writeWait = 5 * time.Second
)

// checkOrigin accepts any origin while no username is configured. With
// basic auth only requests without an Origin header or from the server's
// own host are upgraded.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.opts.Config.Username == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

var cborEnc cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	cborEnc = em
}

// EncodeState serializes a store snapshot for a subscriber in the given format.
func EncodeState(v any, format string) (int, []byte, error) {
	if format == FormatCBOR {
		data, err := cborEnc.Marshal(v)
		return websocket.BinaryMessage, data, err
	}
	data, err := json.Marshal(v)
	return websocket.TextMessage, data, err
}

// WebSocketHandler pushes the whole store to the subscriber every push
// interval until the client disconnects or the server stops.
func (s *Server) WebSocketHandler(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCBOR {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json or cbor")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	s.metrics.SubscriberConnected()
	defer s.metrics.SubscriberDisconnected()

	log := s.logger.With(zap.String("remote", c.RealIP()), zap.String("format", format))
	log.Debug("subscriber connected")

	// Incoming messages are ignored; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.Config.PushInterval())
	defer ticker.Stop()

	for {
		msgType, data, err := EncodeState(s.store.Snapshot(), format)
		if err != nil {
			log.Error("encode state", zap.Error(err))
			return nil
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(msgType, data); err != nil {
			log.Debug("subscriber write failed", zap.Error(err))
			return nil
		}

		select {
		case <-ticker.C:
		case <-closed:
			log.Debug("subscriber disconnected")
			return nil
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return nil
		}
	}
}

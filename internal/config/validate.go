// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks bounds and cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return errors.New("config param devices must list at least one device")
	}

	seen := map[uint8]bool{}
	for i, d := range c.Devices {
		if d.ID > 9 {
			return fmt.Errorf("config param devices[%d].id should be 0..9, got %d", i, d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("config param devices[%d].id %d is used twice", i, d.ID)
		}
		seen[d.ID] = true

		if d.Label == "" {
			return fmt.Errorf("config param devices[%d].label must not be empty", i)
		}
		if d.Path == "" {
			return fmt.Errorf("config param devices[%d].path must not be empty", i)
		}
		switch d.Transport {
		case TransportHID:
		case TransportSerial:
			if d.BaudRate <= 0 {
				return fmt.Errorf("config param devices[%d].baud_rate should be > 0 for serial devices", i)
			}
		default:
			return fmt.Errorf("config param devices[%d].transport should be %q or %q, got %q", i, TransportHID, TransportSerial, d.Transport)
		}
	}

	if c.Poll.IntervalMillis == 0 {
		return errors.New("config param poll.interval_millis should be > 0")
	}
	if c.Poll.RetryIntervalMillis == 0 {
		return errors.New("config param poll.retry_interval_millis should be > 0")
	}
	if c.Poll.ReadTimeoutMillis == 0 {
		return errors.New("config param poll.read_timeout_millis should be > 0")
	}
	if c.Poll.ResponseTimeoutMillis <= c.Poll.ReadTimeoutMillis {
		return errors.New("config param poll.response_timeout_millis must be > poll.read_timeout_millis")
	}

	if c.History.BucketSeconds == 0 || 86400%c.History.BucketSeconds != 0 {
		return fmt.Errorf("config param history.bucket_seconds should divide 86400, got %d", c.History.BucketSeconds)
	}
	if c.History.TickSeconds == 0 || c.History.TickSeconds >= c.History.BucketSeconds {
		return errors.New("config param history.tick_seconds should be > 0 and < history.bucket_seconds")
	}
	layout, err := c.History.FieldLayout()
	if err != nil {
		return fmt.Errorf("config param history.layout: %w", err)
	}
	if errs := layout.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Message
		}
		return fmt.Errorf("config param history: layout %s is invalid: %s", layout.Name, strings.Join(msgs, "; "))
	}

	if c.Server.PushIntervalMillis < 100 {
		return errors.New("config param server.push_interval_millis should be >= 100")
	}
	if (c.Server.Username == "") != (c.Server.Password == "") {
		return errors.New("config params server.username and server.password must be set together")
	}

	if c.MQTT.Enable && c.MQTT.PublishIntervalMillis < 500 {
		return errors.New("config param mqtt.publish_interval_millis should be >= 500")
	}

	return nil
}

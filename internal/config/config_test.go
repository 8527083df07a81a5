// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, DeviceConfig{ID: 1, Label: "Master", Path: "/dev/inverter_master", Transport: TransportHID}, cfg.Devices[0])
	assert.Equal(t, DeviceConfig{ID: 2, Label: "Slave", Path: "/dev/inverter_slave", Transport: TransportHID}, cfg.Devices[1])
	assert.True(t, cfg.Devices[0].ReportID())

	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval())
	assert.Equal(t, 300*time.Second, cfg.Poll.EnergyInterval())
	assert.Equal(t, 1500*time.Millisecond, cfg.Poll.ExchangeOptions(true).ResponseTimeout)
	assert.Equal(t, 10*time.Second, cfg.History.Tick())
	assert.Equal(t, time.Minute, cfg.History.BucketWidth())
	assert.Equal(t, 800*time.Millisecond, cfg.Server.PushInterval())
	assert.Equal(t, uint(3000), cfg.Server.Port)
	assert.Equal(t, zap.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.MQTT.Enable)

	layout, err := cfg.History.FieldLayout()
	require.NoError(t, err)
	assert.Equal(t, pi30.LegacyLayout(), layout)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log_level: debug
devices:
  - id: 0
    label: Solo
    path: /dev/ttyUSB0
    transport: serial
    baud_rate: 2400
history:
  bucket_seconds: 30
  tick_seconds: 5
  layout: custom
  pv_channels:
    - voltage: 14
      current: 25
  load_field: 9
  min_fields: 26
mqtt:
  base_topic: Solar_Roof
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "Solo", cfg.Devices[0].Label)
	assert.Equal(t, 2400, cfg.Devices[0].BaudRate)
	assert.False(t, cfg.Devices[0].ReportID(), "serial devices never use report ids")
	assert.Equal(t, zap.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "solar_roof", cfg.MQTT.BaseTopic)

	layout, err := cfg.History.FieldLayout()
	require.NoError(t, err)
	assert.Equal(t, pi30.LayoutCustom, layout.Name)
	assert.Equal(t, []pi30.PVChannel{{Voltage: 14, Current: 25}}, layout.PVChannels)
	assert.Equal(t, 26, layout.MinFields)
}

func TestLoad_ConfigFileEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfig(t, "server:\n  port: 8080\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint(8080), cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("PI30GATE_POLL_ENERGY_INTERVAL_SECONDS", "60")
	t.Setenv("PI30GATE_HISTORY_LAYOUT", "qpgs")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Poll.EnergyInterval())
	assert.Equal(t, "qpgs", cfg.History.Layout)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidTopic(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "mqtt:\n  base_topic: solar/roof\n"))
	assert.ErrorContains(t, err, "mqtt.base_topic")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"no devices", func(c *Config) { c.Devices = nil }, "at least one device"},
		{"id too large", func(c *Config) { c.Devices[0].ID = 10 }, "devices[0].id"},
		{"duplicate id", func(c *Config) { c.Devices[1].ID = 1 }, "used twice"},
		{"empty label", func(c *Config) { c.Devices[0].Label = "" }, "label"},
		{"empty path", func(c *Config) { c.Devices[1].Path = "" }, "devices[1].path"},
		{"bad transport", func(c *Config) { c.Devices[0].Transport = "usb" }, "transport"},
		{"serial without baud", func(c *Config) { c.Devices[0].Transport = TransportSerial }, "baud_rate"},
		{"bucket not dividing day", func(c *Config) { c.History.BucketSeconds = 7 }, "bucket_seconds"},
		{"tick too long", func(c *Config) { c.History.TickSeconds = 60 }, "tick_seconds"},
		{"unknown layout", func(c *Config) { c.History.Layout = "v3" }, "history.layout"},
		{"invalid custom layout", func(c *Config) { c.History.Layout = pi30.LayoutCustom }, "invalid"},
		{"response timeout", func(c *Config) { c.Poll.ResponseTimeoutMillis = 10 }, "response_timeout_millis"},
		{"push interval", func(c *Config) { c.Server.PushIntervalMillis = 10 }, "push_interval_millis"},
		{"half credentials", func(c *Config) { c.Server.Username = "admin" }, "set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLogLevel("trace"))
	assert.Equal(t, zap.WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(t, zap.ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, zap.InfoLevel, ParseLogLevel("nonsense"))
}

func TestRedacted(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Username = "admin"
	cfg.Server.Password = "hunter2"
	cfg.MQTT.Password = "secret"

	safe := cfg.Redacted()
	assert.Equal(t, "admin", safe.Server.Username)
	assert.Equal(t, "*redacted*", safe.Server.Password)
	assert.Equal(t, "*redacted*", safe.MQTT.Password)
	assert.Equal(t, "hunter2", cfg.Server.Password, "receiver must be untouched")
}

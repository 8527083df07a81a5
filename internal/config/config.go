// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the gateway configuration from defaults, an
// optional YAML file and PI30GATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/Thermoquad/pi30gate/pkg/pi30"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Transport kinds
const (
	TransportHID    = "hid"
	TransportSerial = "serial"
)

const redacted = "*redacted*"

type Config struct {
	LogLevel     zapcore.Level  `mapstructure:"-" yaml:"-"`
	LogLevelName string         `mapstructure:"log_level" yaml:"log_level"`
	Devices      []DeviceConfig `mapstructure:"devices" yaml:"devices"`
	Poll         PollConfig     `mapstructure:"poll" yaml:"poll"`
	History      HistoryConfig  `mapstructure:"history" yaml:"history"`
	Server       ServerConfig   `mapstructure:"server" yaml:"server"`
	MQTT         MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
}

type DeviceConfig struct {
	ID        uint8  `mapstructure:"id" yaml:"id"`
	Label     string `mapstructure:"label" yaml:"label"`
	Path      string `mapstructure:"path" yaml:"path"`
	Transport string `mapstructure:"transport" yaml:"transport"`
	BaudRate  int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	// RawBlocks writes bare 8-byte blocks without the leading report id.
	RawBlocks bool `mapstructure:"raw_blocks" yaml:"raw_blocks"`
}

// ReportID reports whether blocks written to the device carry a report id.
func (d DeviceConfig) ReportID() bool {
	return d.Transport == TransportHID && !d.RawBlocks
}

type PollConfig struct {
	IntervalMillis        uint32 `mapstructure:"interval_millis" yaml:"interval_millis"`
	RetryIntervalMillis   uint32 `mapstructure:"retry_interval_millis" yaml:"retry_interval_millis"`
	EnergyIntervalSeconds uint32 `mapstructure:"energy_interval_seconds" yaml:"energy_interval_seconds"`
	ResponseTimeoutMillis uint32 `mapstructure:"response_timeout_millis" yaml:"response_timeout_millis"`
	ReadTimeoutMillis     uint32 `mapstructure:"read_timeout_millis" yaml:"read_timeout_millis"`
	DrainTimeoutMillis    uint32 `mapstructure:"drain_timeout_millis" yaml:"drain_timeout_millis"`
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMillis) * time.Millisecond
}

func (p PollConfig) RetryInterval() time.Duration {
	return time.Duration(p.RetryIntervalMillis) * time.Millisecond
}

func (p PollConfig) EnergyInterval() time.Duration {
	return time.Duration(p.EnergyIntervalSeconds) * time.Second
}

// ExchangeOptions converts the poll timing into protocol exchange options.
func (p PollConfig) ExchangeOptions(reportID bool) pi30.Options {
	return pi30.Options{
		ReportID:        reportID,
		ResponseTimeout: time.Duration(p.ResponseTimeoutMillis) * time.Millisecond,
		ReadTimeout:     time.Duration(p.ReadTimeoutMillis) * time.Millisecond,
		DrainTimeout:    time.Duration(p.DrainTimeoutMillis) * time.Millisecond,
	}
}

type HistoryConfig struct {
	TickSeconds   uint32           `mapstructure:"tick_seconds" yaml:"tick_seconds"`
	BucketSeconds uint32           `mapstructure:"bucket_seconds" yaml:"bucket_seconds"`
	Layout        string           `mapstructure:"layout" yaml:"layout"`
	PVChannels    []pi30.PVChannel `mapstructure:"pv_channels" yaml:"pv_channels,omitempty"`
	LoadField     int              `mapstructure:"load_field" yaml:"load_field,omitempty"`
	MinFields     int              `mapstructure:"min_fields" yaml:"min_fields,omitempty"`
}

func (h HistoryConfig) Tick() time.Duration {
	return time.Duration(h.TickSeconds) * time.Second
}

func (h HistoryConfig) BucketWidth() time.Duration {
	return time.Duration(h.BucketSeconds) * time.Second
}

// FieldLayout resolves the configured layout: a named preset, or the
// custom index set when layout is "custom".
func (h HistoryConfig) FieldLayout() (pi30.FieldLayout, error) {
	if h.Layout != pi30.LayoutCustom {
		return pi30.LayoutByName(h.Layout)
	}
	return pi30.FieldLayout{
		Name:       pi30.LayoutCustom,
		PVChannels: h.PVChannels,
		LoadPower:  h.LoadField,
		MinFields:  h.MinFields,
	}, nil
}

type ServerConfig struct {
	Port               uint   `mapstructure:"port" yaml:"port"`
	PushIntervalMillis uint32 `mapstructure:"push_interval_millis" yaml:"push_interval_millis"`
	HttpLog            bool   `mapstructure:"http_log" yaml:"http_log"`
	Username           string `mapstructure:"username" yaml:"username"`
	Password           string `mapstructure:"password" yaml:"password"`
}

func (s ServerConfig) PushInterval() time.Duration {
	return time.Duration(s.PushIntervalMillis) * time.Millisecond
}

type MQTTConfig struct {
	Enable                bool   `mapstructure:"enable" yaml:"enable"`
	Host                  string `mapstructure:"host" yaml:"host"`
	Port                  int    `mapstructure:"port" yaml:"port"`
	Username              string `mapstructure:"username" yaml:"username"`
	Password              string `mapstructure:"password" yaml:"password"`
	BaseTopic             string `mapstructure:"base_topic" yaml:"base_topic"`
	PublishIntervalMillis uint32 `mapstructure:"publish_interval_millis" yaml:"publish_interval_millis"`
}

func (m MQTTConfig) PublishInterval() time.Duration {
	return time.Duration(m.PublishIntervalMillis) * time.Millisecond
}

// Load reads the configuration. cfgFile may be empty, in which case the
// CONFIG_FILE environment variable is consulted.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// alias PORT => PI30GATE_SERVER_PORT
	if port := os.Getenv("PORT"); port != "" && os.Getenv("PI30GATE_SERVER_PORT") == "" {
		os.Setenv("PI30GATE_SERVER_PORT", port)
	}

	SetDefaults(v)

	v.SetEnvPrefix("pi30gate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = ParseLogLevel(cfg.LogLevelName)

	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, fmt.Errorf("config param mqtt.base_topic: %w", err)
	}
	cfg.MQTT.BaseTopic = baseTopic

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("devices", []map[string]interface{}{
		{"id": 1, "label": "Master", "path": "/dev/inverter_master", "transport": TransportHID},
		{"id": 2, "label": "Slave", "path": "/dev/inverter_slave", "transport": TransportHID},
	})
	v.SetDefault("poll.interval_millis", 500)
	v.SetDefault("poll.retry_interval_millis", 1000)
	v.SetDefault("poll.energy_interval_seconds", 300)
	v.SetDefault("poll.response_timeout_millis", 1500)
	v.SetDefault("poll.read_timeout_millis", 20)
	v.SetDefault("poll.drain_timeout_millis", 1)
	v.SetDefault("history.tick_seconds", 10)
	v.SetDefault("history.bucket_seconds", 60)
	v.SetDefault("history.layout", pi30.LayoutLegacy)
	v.SetDefault("history.pv_channels", []map[string]interface{}{})
	v.SetDefault("history.load_field", 0)
	v.SetDefault("history.min_fields", 0)
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.push_interval_millis", 800)
	v.SetDefault("server.http_log", false)
	v.SetDefault("server.username", "")
	v.SetDefault("server.password", "")
	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "pi30gate")
	v.SetDefault("mqtt.publish_interval_millis", 5000)
}

// ParseLogLevel maps a level name to a zap level, defaulting to info.
func ParseLogLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	if !baseTopicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Redacted returns a copy of the configuration safe to print.
func (c Config) Redacted() Config {
	if c.Server.Password != "" {
		c.Server.Password = redacted
	}
	if c.MQTT.Username != "" {
		c.MQTT.Username = redacted
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = redacted
	}
	c.Devices = append([]DeviceConfig(nil), c.Devices...)
	return c
}

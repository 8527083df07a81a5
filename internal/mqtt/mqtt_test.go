// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Thermoquad/pi30gate/internal/config"
	"github.com/Thermoquad/pi30gate/internal/history"
	"github.com/Thermoquad/pi30gate/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enable:                true,
		Host:                  "broker.local",
		Port:                  1883,
		Username:              "user",
		Password:              "pass",
		BaseTopic:             "pi30",
		PublishIntervalMillis: 1000,
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "pi30/bridge/state", BridgeStateTopic("pi30"))
	assert.Equal(t, "pi30/state", StateTopic("pi30"))
	assert.Equal(t, "pi30/history/latest", HistoryLatestTopic("pi30"))
	assert.Equal(t, "pi30/device/2/energy", DeviceEnergyTopic("pi30", 2))
}

func TestOptsFromConfig(t *testing.T) {
	opts := OptsFromConfig(testConfig())

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1883", opts.Servers[0].String())
	assert.Contains(t, opts.ClientID, "pi30gate_")
	assert.Equal(t, "user", opts.Username)
	assert.Equal(t, "pass", opts.Password)
	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, "pi30/bridge/state", opts.WillTopic)
	assert.Equal(t, []byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
}

func TestOptsFromConfig_NoCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Password = ""
	opts := OptsFromConfig(cfg)
	assert.Empty(t, opts.Username, "credentials are only set as a pair")
}

func TestMessages(t *testing.T) {
	store := telemetry.NewStore(1, 2)
	series := history.NewSeries(history.BucketsPerDay(time.Minute))
	p := NewPublisher(testConfig(), store, series, zap.NewNop())

	msgs, err := p.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 1, "only the state before any data")
	assert.Equal(t, "pi30/state", msgs[0].Topic)
	assert.JSONEq(t, `{}`, string(msgs[0].Payload))

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(1, telemetry.Snapshot{Label: "Master", Fields: []string{"1"}, Energy: "1.50", LastUpdate: now}))
	_, err = series.Append(history.Point{BucketIndex: 720, PVPower: 1000, LoadPower: 400}, false)
	require.NoError(t, err)

	msgs, err = p.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	var state map[string]telemetry.Snapshot
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &state))
	assert.Equal(t, "Master", state["1"].Label)

	assert.Equal(t, "pi30/history/latest", msgs[1].Topic)
	var point history.Point
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &point))
	assert.Equal(t, 720, point.BucketIndex)

	assert.Equal(t, "pi30/device/1/energy", msgs[2].Topic)
	assert.Equal(t, "1.50", string(msgs[2].Payload))
	assert.True(t, msgs[2].Retain)

	msgs, err = p.Messages()
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "unchanged energy is not republished")
}
